package orders

const (
	StatusPending = "Pending"
	StatusWaiting = "Waiting"
)

// Order is the single shared record the anomaly scenarios fight over.
type Order struct {
	ID          int64   `json:"id"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Status      string  `json:"status"`
}
