package api

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/taranp/isolab/internal/orders"
	"github.com/taranp/isolab/internal/scenario"
)

type Server interface {
	Serve(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Simulator executes one scenario script. Satisfied by
// scenario.Runner.
type Simulator interface {
	Run(ctx context.Context, sc scenario.Script, lvl sql.IsolationLevel, opts scenario.Options) error
}

// Store covers the out-of-band table operations the demonstration
// needs around the scenarios. Satisfied by orders.Storage.
type Store interface {
	Reset(ctx context.Context) error
	List(ctx context.Context) ([]orders.Order, error)
}

// Events hands out narration subscriptions for the push surface.
// Satisfied by narrator.Hub.
type Events interface {
	Attach() (uuid.UUID, <-chan string)
	Detach(id uuid.UUID)
}
