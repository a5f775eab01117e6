package scenario

import "github.com/taranp/isolab/internal/orders"

type Anomaly string

const (
	Basic             Anomaly = "basic"
	DirtyRead         Anomaly = "dirty-read"
	LostUpdate        Anomaly = "lost-update"
	NonRepeatableRead Anomaly = "non-repeatable-read"
	PhantomRead       Anomaly = "phantom-read"
	WriteSkew         Anomaly = "write-skew"
)

type Role string

const (
	RoleA Role = "a"
	RoleB Role = "b"
)

// Options carries the per-invocation knobs a client may set.
// Success defaults to true at the API boundary; a false value makes
// the script's FailUnlessSuccess step abort the transaction.
// ExclusiveLock only affects write-skew role A.
type Options struct {
	Success       bool
	ExclusiveLock bool
}

type StepKind int

const (
	// StepReadFirst selects the first order and makes it the current
	// record for later Mutate/Flush steps.
	StepReadFirst StepKind = iota

	// StepReadSet selects all orders with quantity above MinQuantity.
	StepReadSet

	// StepCountWaiting counts orders in status Waiting and remembers
	// the count for a later OptionalInsert.
	StepCountWaiting

	// StepLockWaiting takes row locks over all Waiting orders.
	StepLockWaiting

	// StepMutate changes the current record's quantity in memory only.
	StepMutate

	// StepFlush writes the current record's quantity back to storage.
	StepFlush

	// StepPause suspends this script for Units base delays, leaving
	// the interleaving window open for the other role.
	StepPause

	// StepFailUnlessSuccess aborts the script when Options.Success
	// is false.
	StepFailUnlessSuccess

	// StepInsert unconditionally inserts the record Make produces.
	StepInsert

	// StepOptionalInsert inserts only while the remembered waiting
	// count is below MaxWaiting.
	StepOptionalInsert

	// StepCommit terminates the script by committing.
	StepCommit
)

// Step is one tagged instruction of a scenario script. Which of the
// parameter fields matter depends on Kind. Note is the narration
// template for the step; SkipNote narrates the not-taken branch of
// an optional insert.
type Step struct {
	Kind StepKind

	Delta       int
	MinQuantity int
	MaxWaiting  int
	Units       int
	Make        func() orders.Order

	Note     string
	SkipNote string
}

// Script is an immutable step sequence for one role of one anomaly.
// Every template ends with StepCommit; the runner decides between
// commit and rollback at execution time.
type Script struct {
	Anomaly Anomaly
	Role    Role

	// Actor is the narration name, "Transaction A" or "Transaction B".
	Actor string

	// Intro is the opening narration; it takes the isolation level
	// name as its single formatting argument.
	Intro string

	Steps []Step
}
