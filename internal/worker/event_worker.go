package worker

import (
	"context"
	"errors"

	"finsight/internal/amqp"
	"finsight/internal/log"
)

// ErrDispatcherStopped is returned when an event arrives after shutdown began.
// The consumer requeues the delivery.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// EventWorker turns transaction change events into generation requests.
type EventWorker struct {
	dispatch Submitter
	logger   *log.Logger
}

func NewEventWorker(dispatch Submitter, logger *log.Logger) *EventWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &EventWorker{dispatch: dispatch, logger: logger.WithComponent(log.ComponentAMQP)}
}

// HandleTransactionChanged implements amqp.Handler.
func (w *EventWorker) HandleTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
	if !w.dispatch.Submit(msg.UserID) {
		return ErrDispatcherStopped
	}
	w.logger.DebugContext(ctx, "Transaction event dispatched",
		log.FieldEventID, msg.EventID,
		log.FieldUserID, msg.UserID,
		"action", msg.Action)
	return nil
}
