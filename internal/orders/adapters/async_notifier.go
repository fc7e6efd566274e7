package adapters

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

const defaultEmitTimeout = 5 * time.Second

// AsyncNotifier emits on a detached goroutine so a slow or failing broker
// never blocks or fails the request that produced the notification.
type AsyncNotifier struct {
	next    ports.NotificationEmitter
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncNotifier(next ports.NotificationEmitter, logger *slog.Logger, timeout time.Duration) *AsyncNotifier {
	if timeout <= 0 {
		timeout = defaultEmitTimeout
	}
	return &AsyncNotifier{next: next, logger: logger, timeout: timeout}
}

// Emit always returns nil. Delivery errors are logged.
func (a *AsyncNotifier) Emit(ctx context.Context, notification domain.Notification) error {
	detached := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		emitCtx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()

		if err := a.next.Emit(emitCtx, notification); err != nil {
			a.logger.WarnContext(emitCtx, "notification not delivered",
				"type", notification.Type,
				"order_id", notification.OrderID,
				"error", err,
			)
		}
	}()
	return nil
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (a *AsyncNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
