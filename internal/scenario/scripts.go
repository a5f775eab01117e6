package scenario

import (
	"fmt"
	"math/rand"

	"github.com/taranp/isolab/internal/orders"
	"github.com/taranp/isolab/pkg/errors"
)

const (
	actorA = "Transaction A"
	actorB = "Transaction B"
)

// Build materializes the script template for one (anomaly, role)
// pair with the given options bound. Unknown pairs are an error.
func Build(anomaly Anomaly, role Role, opts Options) (Script, error) {
	if role != RoleA && role != RoleB {
		return Script{}, errors.Errorf("unknown role %q", role)
	}

	var steps []Step
	var intro string

	switch anomaly {
	case Basic:
		intro = "%s simulating with %s isolation level."
		if role == RoleA {
			steps = []Step{
				{Kind: StepReadFirst, Note: "Transaction A retrieved a record with count = %d."},
				{Kind: StepPause, Units: 1},
				{Kind: StepMutate, Delta: 10},
				{Kind: StepFlush, Note: "Transaction A updated the order count = %d."},
				{Kind: StepPause, Units: 1},
				{Kind: StepFailUnlessSuccess, Note: "Transaction A failed to update the record."},
				{Kind: StepCommit},
			}
		} else {
			steps = readOnlyB()
		}

	case DirtyRead:
		intro = "%s simulating with %s isolation level."
		if role == RoleA {
			steps = []Step{
				{Kind: StepReadFirst, Note: "Transaction A retrieved a record with count = %d."},
				{Kind: StepMutate, Delta: 10},
				{Kind: StepFlush, Note: "Transaction A updated the order count = %d. Trigger Transaction B to read the record."},
				{Kind: StepPause, Units: 2},
				{Kind: StepFailUnlessSuccess, Note: "Transaction A failed to update the record."},
				{Kind: StepCommit},
			}
		} else {
			steps = readOnlyB()
		}

	case LostUpdate:
		intro = "%s simulating Lost Update with %s isolation level."
		if role == RoleA {
			steps = []Step{
				{Kind: StepReadFirst, Note: "Transaction A read: Quantity = %d. Trigger Transaction B to update the record."},
				{Kind: StepPause, Units: 3},
				{Kind: StepMutate, Delta: 10},
				{Kind: StepFlush, Note: "Transaction A updated: Quantity = %d."},
				{Kind: StepCommit},
			}
		} else {
			steps = []Step{
				{Kind: StepReadFirst, Note: "Transaction B read: Quantity = %d."},
				{Kind: StepMutate, Delta: 5},
				{Kind: StepFlush, Note: "Transaction B updated: Quantity = %d."},
				{Kind: StepCommit},
			}
		}

	case NonRepeatableRead:
		intro = "%s simulating Non-Repeatable Read with %s isolation level."
		if role == RoleA {
			steps = []Step{
				{Kind: StepReadFirst, Note: "Transaction A first read: Quantity = %d. Trigger Transaction B to update the record."},
				{Kind: StepPause, Units: 2},
				{Kind: StepReadFirst, Note: "Transaction A re-read: Quantity = %d."},
				{Kind: StepCommit},
			}
		} else {
			steps = []Step{
				{Kind: StepReadFirst, Note: "Transaction B read: Quantity = %d."},
				{Kind: StepMutate, Delta: 10},
				{Kind: StepFlush, Note: "Transaction B updated: Quantity = %d."},
				{Kind: StepCommit},
			}
		}

	case PhantomRead:
		if role == RoleA {
			intro = "%s simulating phantom read with %s isolation level."
			steps = []Step{
				{Kind: StepReadSet, MinQuantity: 5, Note: "Transaction A read %d rows where Quantity > 5. Trigger Transaction B to insert a new row."},
				{Kind: StepPause, Units: 2},
				{Kind: StepReadSet, MinQuantity: 5, Note: "Transaction A re-read %d rows where Quantity > 5."},
				{Kind: StepCommit},
			}
		} else {
			intro = "%s simulating with %s isolation level."
			steps = []Step{
				{Kind: StepInsert, Make: newPhantomOrder, Note: "Transaction B inserted a new row that matches the query condition."},
				{Kind: StepCommit},
			}
		}

	case WriteSkew:
		intro = "%s simulating with %s isolation level."
		if role == RoleA {
			if opts.ExclusiveLock {
				steps = append(steps, Step{Kind: StepLockWaiting})
			}
			steps = append(steps,
				Step{Kind: StepCountWaiting, Note: "Transaction A checked waiting count: %d. Trigger Transaction B to insert a new row."},
				Step{Kind: StepPause, Units: 2},
				Step{
					Kind:       StepOptionalInsert,
					MaxWaiting: 1,
					Make:       func() orders.Order { return newWaitingOrder(50, 99) },
					Note:       "Transaction A added a new waiting order.",
					SkipNote:   "Transaction A skipped the insert: a waiting order already exists.",
				},
				Step{Kind: StepCommit},
			)
		} else {
			steps = []Step{
				{Kind: StepCountWaiting, Note: "Transaction B checked waiting count: %d."},
				{
					Kind:       StepOptionalInsert,
					MaxWaiting: 1,
					Make:       func() orders.Order { return newWaitingOrder(55, 88) },
					Note:       "Transaction B added a new waiting order.",
					SkipNote:   "Transaction B skipped the insert: a waiting order already exists.",
				},
				{Kind: StepCommit},
			}
		}

	default:
		return Script{}, errors.Errorf("unknown anomaly %q", anomaly)
	}

	actor := actorA
	if role == RoleB {
		actor = actorB
	}

	return Script{
		Anomaly: anomaly,
		Role:    role,
		Actor:   actor,
		Intro:   fmt.Sprintf(intro, actor, "%s"),
		Steps:   steps,
	}, nil
}

// readOnlyB is the observer script shared by the basic and dirty
// read anomalies: read the record, report, commit.
func readOnlyB() []Step {
	return []Step{
		{Kind: StepReadFirst, Note: "Transaction B read data: Quantity = %d."},
		{Kind: StepCommit},
	}
}

func newPhantomOrder() orders.Order {
	return orders.Order{
		ProductName: fmt.Sprintf("New Product %d", rand.Intn(99)+1),
		Quantity:    rand.Intn(90) + 10,
		Price:       float64(rand.Intn(150) + 50),
		Status:      orders.StatusPending,
	}
}

func newWaitingOrder(quantity int, price float64) orders.Order {
	return orders.Order{
		ProductName: fmt.Sprintf("Order Waiting %d", rand.Intn(99)+1),
		Quantity:    quantity,
		Price:       price,
		Status:      orders.StatusWaiting,
	}
}
