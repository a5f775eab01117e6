package scenario

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taranp/isolab/internal/orders"
	"github.com/taranp/isolab/pkg/errors"
	"github.com/taranp/isolab/pkg/isolevel"
	"github.com/taranp/isolab/pkg/logger"
)

// Storage opens transactions for the runner. Satisfied by
// orders.Storage.
type Storage interface {
	Begin(ctx context.Context, lvl sql.IsolationLevel) (orders.Tx, error)
}

// Broadcaster receives the step-by-step narration. Satisfied by
// narrator.Hub.
type Broadcaster interface {
	Broadcast(message string)
}

// scriptedAbort marks a failure the script asked for, as opposed to
// one the storage engine produced. Both roll the transaction back
// and narrate identically; only the log level differs.
type scriptedAbort struct {
	reason string
}

func (e scriptedAbort) Error() string {
	return e.reason
}

// Runner interprets scenario scripts inside a single database
// transaction. All anomaly-producing errors are absorbed here and
// turned into narration; only a failure to open the transaction
// surfaces to the caller.
type Runner struct {
	store Storage
	hub   Broadcaster
	unit  time.Duration
	log   logger.Logger
}

func NewRunner(store Storage, hub Broadcaster, unit time.Duration, log logger.Logger) *Runner {
	return &Runner{
		store: store,
		hub:   hub,
		unit:  unit,
		log:   log.With("scenario_runner"),
	}
}

func (r *Runner) Run(ctx context.Context, sc Script, lvl sql.IsolationLevel, opts Options) error {
	r.hub.Broadcast(fmt.Sprintf(sc.Intro, isolevel.Name(lvl)))

	tx, err := r.store.Begin(ctx, lvl)
	if err != nil {
		err = errors.WrapFail(err, "open transaction")
		r.hub.Broadcast(fmt.Sprintf("%s could not start. Exception: %s", sc.Actor, err))
		return err
	}

	r.hub.Broadcast(sc.Actor + " started.")

	// released flips on the first Commit or Rollback call; the
	// transaction handle must see exactly one of them.
	released := false

	err = r.play(ctx, tx, sc, opts, &released)
	if err != nil {
		if !released {
			released = true
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Error(errors.WrapFail(rbErr, "roll back transaction"))
			}
		}

		var aborted scriptedAbort
		if errors.As(err, &aborted) {
			r.log.Infof("%s %s/%s aborted as scripted", sc.Actor, sc.Anomaly, sc.Role)
		} else {
			r.log.Warn(errors.WrapFailf(err, "execute %s/%s step", sc.Anomaly, sc.Role))
		}

		r.hub.Broadcast(fmt.Sprintf("%s rolled back. Exception: %s", sc.Actor, err))
		return nil
	}

	r.hub.Broadcast(sc.Actor + " committed.")
	return nil
}

func (r *Runner) play(ctx context.Context, tx orders.Tx, sc Script, opts Options, released *bool) error {
	var (
		cur     orders.Order
		loaded  bool
		waiting int
	)

	for _, st := range sc.Steps {
		switch st.Kind {
		case StepReadFirst:
			o, err := tx.First(ctx)
			if err != nil {
				return err
			}
			cur, loaded = o, true
			r.hub.Broadcast(fmt.Sprintf(st.Note, o.Quantity))

		case StepReadSet:
			rows, err := tx.Above(ctx, st.MinQuantity)
			if err != nil {
				return err
			}
			r.hub.Broadcast(fmt.Sprintf(st.Note, len(rows)))

		case StepCountWaiting:
			n, err := tx.CountByStatus(ctx, orders.StatusWaiting)
			if err != nil {
				return err
			}
			waiting = n
			r.hub.Broadcast(fmt.Sprintf(st.Note, n))

		case StepLockWaiting:
			err := tx.LockByStatus(ctx, orders.StatusWaiting)
			if err != nil {
				return err
			}

		case StepMutate:
			if !loaded {
				return errors.Fail("mutate: no record has been read")
			}
			cur.Quantity += st.Delta

		case StepFlush:
			if !loaded {
				return errors.Fail("flush: no record has been read")
			}
			err := tx.UpdateQuantity(ctx, cur.ID, cur.Quantity)
			if err != nil {
				return err
			}
			r.hub.Broadcast(fmt.Sprintf(st.Note, cur.Quantity))

		case StepPause:
			err := r.pause(ctx, st.Units)
			if err != nil {
				return err
			}

		case StepFailUnlessSuccess:
			if !opts.Success {
				r.hub.Broadcast(st.Note)
				return scriptedAbort{reason: st.Note}
			}

		case StepInsert:
			err := tx.Insert(ctx, st.Make())
			if err != nil {
				return err
			}
			r.hub.Broadcast(st.Note)

		case StepOptionalInsert:
			if waiting < st.MaxWaiting {
				err := tx.Insert(ctx, st.Make())
				if err != nil {
					return err
				}
				r.hub.Broadcast(st.Note)
			} else {
				r.hub.Broadcast(st.SkipNote)
			}

		case StepCommit:
			*released = true
			return errors.WrapFail(tx.Commit(), "commit transaction")

		default:
			return errors.Errorf("unknown step kind %d", st.Kind)
		}
	}

	return errors.Fail("finish script: no commit step")
}

func (r *Runner) pause(ctx context.Context, units int) error {
	timer := time.NewTimer(time.Duration(units) * r.unit)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "pause interrupted")
	}
}
