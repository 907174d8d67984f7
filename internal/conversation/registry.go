package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/observability"
)

var (
	// ErrSuperseded cancels an attempt replaced by a restart.
	ErrSuperseded = errors.New("conversation superseded")
	// ErrStopped cancels an attempt whose ticket went away.
	ErrStopped = errors.New("conversation stopped")
	// ErrRegistryClosed is returned by Start after Shutdown.
	ErrRegistryClosed = errors.New("conversation registry closed")
)

// Runner runs one conversation attempt.
type Runner interface {
	Run(ctx context.Context, s Session) (Outcome, error)
}

// FinishFunc observes a finished attempt.
type FinishFunc func(s Session, out Outcome, err error)

type instance struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Registry keeps at most one running attempt per ticket.
type Registry struct {
	runner   Runner
	logger   *zap.Logger
	metrics  *observability.Metrics
	onFinish FinishFunc

	base     context.Context
	stopBase context.CancelFunc

	mu      sync.Mutex
	closed  bool
	running map[string]*instance
	wg      sync.WaitGroup
}

func NewRegistry(runner Runner, logger *zap.Logger, metrics *observability.Metrics, onFinish FinishFunc) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, stop := context.WithCancel(context.Background())
	return &Registry{
		runner:   runner,
		logger:   logger,
		metrics:  metrics,
		onFinish: onFinish,
		base:     base,
		stopBase: stop,
		running:  make(map[string]*instance),
	}
}

// Start launches a fresh attempt for the session's ticket. A running attempt
// for the same ticket is cancelled and awaited first, so two attempts never
// read the same channel. ctx bounds only that wait.
func (r *Registry) Start(ctx context.Context, s Session) error {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrRegistryClosed
		}
		prev, ok := r.running[s.TicketID]
		if !ok {
			r.launchLocked(s)
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		prev.cancel(ErrSuperseded)
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Registry) launchLocked(s Session) {
	runCtx, cancel := context.WithCancelCause(r.base)
	inst := &instance{cancel: cancel, done: make(chan struct{})}
	r.running[s.TicketID] = inst
	r.wg.Add(1)
	r.metrics.ConversationStarted()

	go func() {
		defer r.wg.Done()
		out, err := r.runner.Run(runCtx, s)
		cancel(nil)

		r.mu.Lock()
		if r.running[s.TicketID] == inst {
			delete(r.running, s.TicketID)
		}
		r.mu.Unlock()
		defer close(inst.done)

		r.metrics.ConversationFinished(resultLabel(out, err))
		r.logger.Debug("conversation finished",
			zap.String("ticket_id", s.TicketID),
			zap.String("state", string(out.State)),
			zap.Error(err))
		if r.onFinish != nil {
			r.onFinish(s, out, err)
		}
	}()
}

// Stop cancels the ticket's attempt, if any, and waits for it to exit.
func (r *Registry) Stop(ctx context.Context, ticketID string) error {
	r.mu.Lock()
	inst, ok := r.running[ticketID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	inst.cancel(ErrStopped)
	select {
	case <-inst.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports whether an attempt is running for the ticket.
func (r *Registry) Active(ticketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[ticketID]
	return ok
}

// Shutdown cancels every attempt and waits for them, or for ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stopBase()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resultLabel(out Outcome, err error) string {
	switch {
	case errors.Is(err, ErrStepTimeout):
		return "timeout"
	case errors.Is(err, ErrSuperseded), errors.Is(err, ErrStopped), errors.Is(err, context.Canceled):
		return "cancelled"
	case err != nil:
		return "error"
	case out.Verification != nil:
		return strings.ToLower(string(out.Verification.Outcome))
	default:
		return "done"
	}
}
