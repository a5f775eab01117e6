package orders

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/taranp/isolab/pkg/errors"
	"github.com/taranp/isolab/pkg/logger"
)

type Config struct {
	DSN string `yaml:"dsn"`
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id           BIGSERIAL PRIMARY KEY,
    product_name TEXT NOT NULL,
    quantity     INTEGER NOT NULL,
    price        NUMERIC(10,2) NOT NULL,
    status       TEXT NOT NULL DEFAULT 'Pending'
)`

var seed = Order{
	ProductName: "Apple",
	Quantity:    51,
	Price:       75,
	Status:      StatusPending,
}

// Storage gives the scenario engine transactional access to the
// orders table. Isolation is chosen per transaction by the caller;
// Storage adds no locking of its own.
type Storage struct {
	db  *sql.DB
	log logger.Logger
}

func New(ctx context.Context, cfg Config, log logger.Logger) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, errors.WrapFail(err, "open postgres connection")
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, errors.WrapFail(err, "ping postgres")
	}

	_, err = db.ExecContext(ctx, schema)
	if err != nil {
		_ = db.Close()
		return nil, errors.WrapFail(err, "ensure orders schema")
	}

	return &Storage{db: db, log: log.With("orders_storage")}, nil
}

// Begin opens a transaction at the requested isolation level.
// If the engine rejects the level, the error goes straight back to
// the caller: there is no transaction to roll back yet.
func (s *Storage) Begin(ctx context.Context, lvl sql.IsolationLevel) (Tx, error) {
	raw, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: lvl})
	if err != nil {
		return nil, errors.WrapFail(err, "begin transaction")
	}

	return &ordersTx{tx: raw}, nil
}

// Reset wipes the table and plants the canonical seed record.
// Runs outside any demonstration transaction.
func (s *Storage) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM orders`)
	if err != nil {
		return errors.WrapFail(err, "clear orders")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (product_name, quantity, price, status) VALUES ($1, $2, $3, $4)`,
		seed.ProductName, seed.Quantity, seed.Price, seed.Status,
	)
	return errors.WrapFail(err, "insert seed order")
}

// List returns the current table contents, id order.
func (s *Storage) List(ctx context.Context) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_name, quantity, price, status FROM orders ORDER BY id`)
	if err != nil {
		return nil, errors.WrapFail(err, "select orders")
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (s *Storage) Close() error {
	return errors.WrapFail(s.db.Close(), "close postgres connection")
}

// Tx is one open transaction against the orders table. Exactly one
// of Commit/Rollback must be called; the scenario runner owns that.
type Tx interface {
	First(ctx context.Context) (Order, error)
	Above(ctx context.Context, minQuantity int) ([]Order, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	LockByStatus(ctx context.Context, status string) error
	UpdateQuantity(ctx context.Context, id int64, quantity int) error
	Insert(ctx context.Context, o Order) error
	Commit() error
	Rollback() error
}

type ordersTx struct {
	tx *sql.Tx
}

func (t *ordersTx) First(ctx context.Context) (Order, error) {
	var o Order
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, product_name, quantity, price, status FROM orders ORDER BY id LIMIT 1`,
	).Scan(&o.ID, &o.ProductName, &o.Quantity, &o.Price, &o.Status)
	if err != nil {
		return Order{}, errors.WrapFail(err, "select first order")
	}
	return o, nil
}

func (t *ordersTx) Above(ctx context.Context, minQuantity int) ([]Order, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, product_name, quantity, price, status FROM orders WHERE quantity > $1 ORDER BY id`,
		minQuantity)
	if err != nil {
		return nil, errors.WrapFail(err, "select orders by quantity")
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (t *ordersTx) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT count(*) FROM orders WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, errors.WrapFail(err, "count orders by status")
	}
	return n, nil
}

// LockByStatus takes row locks over all orders in the given status,
// the Postgres rendition of the source's XLOCK hint.
func (t *ordersTx) LockByStatus(ctx context.Context, status string) error {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id FROM orders WHERE status = $1 FOR UPDATE`, status)
	if err != nil {
		return errors.WrapFail(err, "lock orders by status")
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return errors.WrapFail(err, "scan locked order id")
		}
	}
	return errors.WrapFail(rows.Err(), "iterate locked orders")
}

func (t *ordersTx) UpdateQuantity(ctx context.Context, id int64, quantity int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET quantity = $1 WHERE id = $2`, quantity, id)
	return errors.WrapFail(err, "update order quantity")
}

func (t *ordersTx) Insert(ctx context.Context, o Order) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO orders (product_name, quantity, price, status) VALUES ($1, $2, $3, $4)`,
		o.ProductName, o.Quantity, o.Price, o.Status)
	return errors.WrapFail(err, "insert order")
}

func (t *ordersTx) Commit() error {
	return t.tx.Commit()
}

func (t *ordersTx) Rollback() error {
	return t.tx.Rollback()
}

func scanOrders(rows *sql.Rows) ([]Order, error) {
	var out []Order
	for rows.Next() {
		var o Order
		err := rows.Scan(&o.ID, &o.ProductName, &o.Quantity, &o.Price, &o.Status)
		if err != nil {
			return nil, errors.WrapFail(err, "scan order row")
		}
		out = append(out, o)
	}
	return out, errors.WrapFail(rows.Err(), "iterate order rows")
}
