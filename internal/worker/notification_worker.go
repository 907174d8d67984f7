package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/transport"
)

// ErrQueueFull is returned by Enqueue when the worker is saturated.
var ErrQueueFull = errors.New("notification queue full")

// AdminNotifier delivers admin notifications.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, notification transport.AdminNotification) error
}

// NotificationWorker delivers admin notifications off the request path,
// retrying each a bounded number of times.
type NotificationWorker struct {
	notifier AdminNotifier
	logger   *zap.Logger
	queue    chan transport.AdminNotification
	attempts int
	backoff  time.Duration
	wg       sync.WaitGroup
}

func NewNotificationWorker(notifier AdminNotifier, logger *zap.Logger, capacity, attempts int, backoff time.Duration) *NotificationWorker {
	if capacity <= 0 {
		capacity = 64
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &NotificationWorker{
		notifier: notifier,
		logger:   logger,
		queue:    make(chan transport.AdminNotification, capacity),
		attempts: attempts,
		backoff:  backoff,
	}
}

// Enqueue schedules a notification without blocking.
func (w *NotificationWorker) Enqueue(n transport.AdminNotification) error {
	select {
	case w.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start consumes the queue until ctx is cancelled. Notifications still
// queued at that point are delivered once more with a short deadline.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case n := <-w.queue:
				w.deliver(ctx, n)
			case <-ctx.Done():
				w.drain()
				return
			}
		}
	}()
}

// Wait blocks until the worker goroutine has exited.
func (w *NotificationWorker) Wait() {
	w.wg.Wait()
}

func (w *NotificationWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case n := <-w.queue:
			w.deliver(ctx, n)
		default:
			return
		}
	}
}

// retryPolicy allows w.attempts calls in total, doubling the wait from
// w.backoff between them, and stops early once ctx is done.
func (w *NotificationWorker) retryPolicy(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if w.backoff > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = w.backoff
		exp.RandomizationFactor = 0
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.attempts-1)), ctx)
}

func (w *NotificationWorker) deliver(ctx context.Context, n transport.AdminNotification) {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return w.notifier.NotifyAdmins(ctx, n)
	}, w.retryPolicy(ctx))
	if err == nil {
		w.logger.Debug("admin notification delivered",
			zap.String("payment_id", n.PaymentID), zap.Int("attempts", attempt))
		return
	}
	w.logger.Error("admin notification dropped",
		zap.String("payment_id", n.PaymentID),
		zap.String("user_id", n.UserExternalID),
		zap.Int("attempts", attempt),
		zap.Error(err))
}
