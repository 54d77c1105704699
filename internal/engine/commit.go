package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ports"
	"levelBot/internal/position"
)

// execute carries a prepared transition through the two-phase contract:
//
//  1. Prepare: the transition is already computed; Begin applies its ladder
//     change and records the previous state.
//  2. Place: the order placer is called exactly once.
//  3. Rollback on failure: the previous state is restored, the failure is
//     alerted and logged, nothing else is written.
//  4. Commit on success: the executed position becomes the active position
//     and the state store gets one update.
//  5. Persist: position and orders are written. A failure here leaves the
//     committed state in place and is alerted once.
//
// Once dispatched, the decision runs to completion: cancellation of ctx does
// not reach the placer or the writes that follow it.
func (e *Engine) execute(ctx context.Context, tr position.Transition, now time.Time) Result {
	ctx = context.WithoutCancel(ctx)
	op := "execute " + string(tr.Kind)
	e.logger.Info(ctx, op+": Placing order", map[string]interface{}{"rule": tr.Rule, "side": tr.Side})

	tx := e.state.Begin(tr.Levels)

	placed, err := e.placer.Place(ctx, tr.Side)
	if err == nil && placed == nil {
		err = errors.New("order placer returned no fill")
	}
	if err != nil {
		tx.Rollback()
		err = fmt.Errorf("%s by %s failed: %w: %w", tr.Kind, tr.Rule, ports.ErrOrderPlacementFailed, err)
		e.logger.Error(ctx, err, op+": Order placement failed, state rolled back")
		e.metrics.IncFailure("order")
		e.alert(ctx, e.orderFailedMessage(tr, err), domain.LogError)
		return Result{Kind: OrderFailed, Action: tr.Kind, Rule: tr.Rule, Position: e.state.Position.Clone(), Err: err}
	}
	if placed.ExecutedAt.IsZero() {
		placed.ExecutedAt = now
	}

	final := tr.Complete(placed)
	tx.Commit(final)
	e.logger.Info(ctx, op+": Order executed, state committed", map[string]interface{}{
		"positionRef": final.Ref.String(),
		"status":      final.Status,
		"price":       placed.ExecutedPrice,
	})
	e.metrics.IncDecision(string(tr.Kind))
	e.metrics.IncOrder(string(placed.Side))
	e.metrics.SetActivePosition(final.IsOpen())
	if tr.Kind == position.KindClose {
		e.metrics.IncClose(tr.Rule)
	}
	if tr.Kind == position.KindOpen {
		e.publish(ctx, e.stateStore.Add)
	} else {
		e.publish(ctx, e.stateStore.Edit)
	}

	err = e.persist(ctx, final)
	e.publishSnapshot()
	if err != nil {
		err = fmt.Errorf("%w: %w", ports.ErrPersistenceFailed, err)
		e.logger.Error(ctx, err, op+": Executed order not recorded", map[string]interface{}{"positionRef": final.Ref.String()})
		e.metrics.IncFailure("persist")
		e.alert(ctx, e.persistFailedMessage(tr, err), domain.LogError)
		return Result{Kind: PersistFailed, Action: tr.Kind, Rule: tr.Rule, Position: e.state.Position.Clone(), Err: err}
	}

	e.alert(ctx, e.decisionMessage(tr, final), domain.LogState)
	return Result{Kind: Committed, Action: tr.Kind, Rule: tr.Rule, Position: e.state.Position.Clone()}
}

// persist writes pos and its new orders, then replaces provisional ids in the
// state with the durable ones. A position the store has never confirmed is
// created rather than updated. Rows left over from an earlier failed write are
// recorded late and alerted, never written silently.
func (e *Engine) persist(ctx context.Context, pos *domain.Position) error {
	if msg := e.lateRecordMessage(pos); msg != "" {
		e.logger.Warn(ctx, "Recording rows not stored when executed", map[string]interface{}{"positionRef": pos.Ref.String()})
		e.alert(ctx, msg, domain.LogError)
	}

	positionID := pos.ID
	if pos.IsPersisted() {
		if err := e.store.UpdatePosition(ctx, pos); err != nil {
			return fmt.Errorf("update position %d: %w", pos.ID, err)
		}
	} else {
		id, err := e.store.CreatePosition(ctx, pos)
		if err != nil {
			return fmt.Errorf("create position: %w", err)
		}
		positionID = id
	}

	orderIDs := make(map[domain.ProvisionalID]int64)
	var errs []error
	for i := range pos.Orders {
		o := pos.Orders[i]
		if o.IsPersisted() {
			continue
		}
		id, err := e.store.CreateOrder(ctx, positionID, &o)
		if err != nil {
			errs = append(errs, fmt.Errorf("create order %s: %w", o.Rule, err))
			continue
		}
		orderIDs[o.Ref] = id
	}
	e.state.reconcile(pos.Ref, positionID, orderIDs)
	e.logger.Debug(ctx, "Position persisted", map[string]interface{}{"positionID": positionID, "orders": len(orderIDs)})
	return errors.Join(errs...)
}
