package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
)

// Dispatcher is the engine entry point the emitter forwards events to.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev automation.Event) (DispatchResult, error)
}

// Emitter hands committed board events to the engine. It never reports
// dispatch failures back to the mutation that produced the event.
type Emitter struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewEmitter creates an emitter. A nil logger uses zap.L().
func NewEmitter(d Dispatcher, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.L()
	}
	return &Emitter{dispatcher: d, logger: logger}
}

// Emit dispatches ev and logs the outcome. A nil emitter is a no-op.
func (em *Emitter) Emit(ctx context.Context, ev automation.Event) {
	if em == nil || em.dispatcher == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			em.logger.Error("dispatch panicked",
				zap.String("event", string(ev.Kind())),
				zap.String("board_id", ev.BoardID()),
				zap.String("card_id", ev.CardID()),
				zap.Any("panic", r),
			)
		}
	}()

	res, err := em.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		em.logger.Error("dispatch failed",
			zap.String("event", string(ev.Kind())),
			zap.String("board_id", ev.BoardID()),
			zap.String("card_id", ev.CardID()),
			zap.Error(err),
		)
		return
	}
	em.logger.Debug("event dispatched",
		zap.String("event", string(ev.Kind())),
		zap.String("card_id", ev.CardID()),
		zap.Int("triggered", res.Triggered),
	)
}
