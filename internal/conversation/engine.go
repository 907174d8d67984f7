// Package conversation drives the guided payment declaration inside a ticket
// channel: currency, amount, order id, gateway intent, confirmation artifact.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/clock"
	"github.com/spec-kit/premium-verification/internal/domain"
	"github.com/spec-kit/premium-verification/internal/gateway"
	"github.com/spec-kit/premium-verification/internal/observability"
	"github.com/spec-kit/premium-verification/internal/transport"
	apperrors "github.com/spec-kit/premium-verification/pkg/util/errorutil"
)

// State is a step of the conversation.
type State string

const (
	StateAwaitingCurrency             State = "AWAITING_CURRENCY"
	StateAwaitingAmount               State = "AWAITING_AMOUNT"
	StateAwaitingOrderID              State = "AWAITING_ORDER_ID"
	StateIntentCreated                State = "INTENT_CREATED"
	StateAwaitingConfirmationArtifact State = "AWAITING_CONFIRMATION_ARTIFACT"
	StateDone                         State = "DONE"
)

// ErrStepTimeout is the cancellation cause of an expired step.
var ErrStepTimeout = errors.New("conversation step timed out")

// RestartOption is the button offered after an attempt ends early.
const RestartOption = "Restart"

// Session identifies the ticket a conversation runs in.
type Session struct {
	TicketID       string
	UserID         string
	ExternalUserID string
	ChannelRef     string
}

// Confirmer verifies a submitted artifact and applies the entitlement.
type Confirmer interface {
	Confirm(ctx context.Context, submission domain.Submission) (domain.VerificationResult, error)
}

// Outcome describes how an attempt ended.
type Outcome struct {
	State        State
	Request      domain.PaymentRequest
	Verification *domain.VerificationResult
}

// Config bounds each wait and shapes the prompts.
type Config struct {
	CurrencyTimeout     time.Duration
	AmountTimeout       time.Duration
	OrderIDTimeout      time.Duration
	ArtifactTimeout     time.Duration
	PresetAmounts       []decimal.Decimal
	OrderIDMaxLength    int
	EntitlementDuration time.Duration
}

// Engine runs conversation attempts. It holds no per-ticket state; every
// attempt keeps its PaymentRequest on the stack of Run.
type Engine struct {
	transport transport.Transport
	gateway   gateway.Gateway
	confirmer Confirmer
	clock     clock.Clock
	cfg       Config
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// EngineDependencies bundles collaborators for the engine.
type EngineDependencies struct {
	Transport transport.Transport
	Gateway   gateway.Gateway
	Confirmer Confirmer
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

func NewEngine(deps EngineDependencies, cfg Config) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{
		transport: deps.Transport,
		gateway:   deps.Gateway,
		confirmer: deps.Confirmer,
		clock:     deps.Clock,
		cfg:       cfg,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
}

// Run executes one attempt from AWAITING_CURRENCY to DONE. It returns an
// error wrapping ErrStepTimeout when a step expires, and ctx's error when the
// attempt is cancelled by a restart or ticket deletion.
func (e *Engine) Run(ctx context.Context, s Session) (Outcome, error) {
	log := e.logger.With(zap.String("ticket_id", s.TicketID), zap.String("channel_ref", s.ChannelRef))
	var req domain.PaymentRequest
	out := Outcome{State: StateAwaitingCurrency}

	// Answers typed into an earlier attempt must not feed this one.
	if err := e.transport.DiscardPending(ctx, s.ChannelRef); err != nil {
		return out, apperrors.NewTransportError("discard_pending", err)
	}

	currency, err := awaitInput(ctx, e, s, step{
		state:   StateAwaitingCurrency,
		timeout: e.cfg.CurrencyTimeout,
		prompt:  e.currencyPrompt(),
		retry:   "Please pick one of USD, EUR or GBP.",
	}, func(msg transport.Message) (domain.Currency, error) {
		return domain.ParseCurrency(msg.Content)
	})
	if err != nil {
		return out, err
	}
	req.Currency = currency
	out.State = StateAwaitingAmount

	amount, err := awaitInput(ctx, e, s, step{
		state:   StateAwaitingAmount,
		timeout: e.cfg.AmountTimeout,
		prompt:  e.amountPrompt(currency),
		retry:   "The amount must be a positive number, for example 59.95.",
	}, func(msg transport.Message) (decimal.Decimal, error) {
		return domain.ParseAmount(msg.Content)
	})
	if err != nil {
		return out, err
	}
	req.Amount = amount
	out.State = StateAwaitingOrderID

	orderID, err := awaitInput(ctx, e, s, step{
		state:   StateAwaitingOrderID,
		timeout: e.cfg.OrderIDTimeout,
		prompt:  transport.Prompt{Content: "Please enter the order id of your purchase."},
		retry:   fmt.Sprintf("The order id must be between 1 and %d characters.", e.orderIDMaxLength()),
	}, func(msg transport.Message) (string, error) {
		return domain.ParseOrderID(msg.Content, e.orderIDMaxLength())
	})
	if err != nil {
		return out, err
	}
	req.OrderID = orderID
	out.State = StateIntentCreated

	intent, err := e.gateway.CreateIntent(ctx, req.MinorUnits(), string(req.Currency), req.OrderID)
	if err != nil {
		log.Warn("create intent failed", zap.String("order_id", req.OrderID), zap.Error(err))
		e.offerRestart(ctx, s, "We could not reach the payment provider.")
		return out, apperrors.NewGatewayError(err)
	}
	req.IntentRef = intent.Ref
	out.Request = req
	out.State = StateAwaitingConfirmationArtifact

	artifact, err := awaitInput(ctx, e, s, step{
		state:   StateAwaitingConfirmationArtifact,
		timeout: e.cfg.ArtifactTimeout,
		prompt: transport.Prompt{Content: fmt.Sprintf(
			"Your payment of %s %s for order %s has reference `%s`. "+
				"Once paid, send a screenshot of the confirmation together with the reference in one message.",
			req.Amount.StringFixed(2), req.Currency, req.OrderID, req.IntentRef)},
		retry: fmt.Sprintf("Please attach an image and include the reference `%s` in the same message.", req.IntentRef),
	}, func(msg transport.Message) (transport.Attachment, error) {
		return matchArtifact(msg, req.IntentRef)
	})
	if err != nil {
		return out, err
	}

	result, err := e.confirmer.Confirm(ctx, domain.Submission{
		UserID:      s.UserID,
		TicketID:    s.TicketID,
		IntentRef:   req.IntentRef,
		ArtifactRef: artifact.URL,
	})
	out.State = StateDone
	out.Verification = &result
	if err != nil {
		log.Error("confirmation failed", zap.String("intent_ref", req.IntentRef), zap.Error(err))
		e.send(ctx, s, transport.Prompt{Content: confirmFailureMessage(err)})
		return out, err
	}
	e.send(ctx, s, transport.Prompt{Content: e.outcomeMessage(result)})
	return out, nil
}

type step struct {
	state   State
	timeout time.Duration
	prompt  transport.Prompt
	retry   string
}

// awaitInput prompts and waits for the owner's next message until parse
// accepts it. Rejected input is answered with a re-prompt and a fresh
// deadline.
func awaitInput[T any](ctx context.Context, e *Engine, s Session, st step, parse func(transport.Message) (T, error)) (T, error) {
	var zero T
	prompt := st.prompt
	for {
		if err := e.transport.SendPrompt(ctx, s.ChannelRef, prompt); err != nil {
			return zero, apperrors.NewTransportError("send_prompt", err)
		}

		msg, err := e.next(ctx, s, st.timeout)
		if err != nil {
			if errors.Is(err, ErrStepTimeout) {
				e.logger.Info("conversation step timed out",
					zap.String("ticket_id", s.TicketID), zap.String("state", string(st.state)))
				e.metrics.StepTimedOut(string(st.state))
				e.offerRestart(ctx, s, "This step timed out.")
				return zero, fmt.Errorf("%w: %w", ErrStepTimeout, apperrors.NewTimeoutError(string(st.state)))
			}
			return zero, err
		}

		value, err := parse(msg)
		if err == nil {
			return value, nil
		}
		prompt = transport.Prompt{Content: st.retry + "\n\n" + st.prompt.Content, Options: st.prompt.Options}
	}
}

// next waits for the owner's next message with a deadline of d.
func (e *Engine) next(ctx context.Context, s Session, d time.Duration) (transport.Message, error) {
	stepCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if d > 0 {
		timer := e.clock.AfterFunc(d, func() { cancel(ErrStepTimeout) })
		defer timer.Stop()
	}

	msg, err := e.transport.AwaitNextMessage(stepCtx, s.ChannelRef, func(m transport.Message) bool {
		return m.AuthorID == s.ExternalUserID
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(context.Cause(stepCtx), ErrStepTimeout) {
			return transport.Message{}, ErrStepTimeout
		}
		if ctx.Err() != nil {
			return transport.Message{}, context.Cause(ctx)
		}
		return transport.Message{}, err
	}
	return msg, nil
}

func (e *Engine) send(ctx context.Context, s Session, prompt transport.Prompt) {
	if err := e.transport.SendPrompt(ctx, s.ChannelRef, prompt); err != nil {
		e.logger.Warn("send prompt failed", zap.String("channel_ref", s.ChannelRef), zap.Error(err))
	}
}

func (e *Engine) offerRestart(ctx context.Context, s Session, reason string) {
	e.send(ctx, s, transport.Prompt{
		Content: reason + " Press Restart to begin again.",
		Options: []string{RestartOption},
	})
}

func (e *Engine) currencyPrompt() transport.Prompt {
	options := make([]string, 0, len(domain.SupportedCurrencies))
	for _, c := range domain.SupportedCurrencies {
		options = append(options, string(c))
	}
	return transport.Prompt{Content: "Which currency did you pay in?", Options: options}
}

func (e *Engine) amountPrompt(currency domain.Currency) transport.Prompt {
	options := make([]string, 0, len(e.cfg.PresetAmounts))
	for _, a := range e.cfg.PresetAmounts {
		options = append(options, a.StringFixed(2))
	}
	return transport.Prompt{
		Content: fmt.Sprintf("How much did you pay in %s? Pick an amount or type it.", currency),
		Options: options,
	}
}

func (e *Engine) orderIDMaxLength() int {
	if e.cfg.OrderIDMaxLength > 0 {
		return e.cfg.OrderIDMaxLength
	}
	return domain.DefaultOrderIDMaxLength
}

func (e *Engine) outcomeMessage(result domain.VerificationResult) string {
	switch result.Outcome {
	case domain.OutcomeAccepted:
		if days := int(e.cfg.EntitlementDuration / (24 * time.Hour)); days > 0 {
			return fmt.Sprintf("Payment verified. Your premium access is active for %d days.", days)
		}
		return "Payment verified. Your premium access is active."
	case domain.OutcomeAlreadyEntitled:
		return "You already have premium access."
	case domain.OutcomeAlreadyConfirmed:
		return "A payment has already been confirmed for your account."
	case domain.OutcomeOrderIDMissing:
		return "The payment has no order id attached. Please contact an admin."
	case domain.OutcomeDuplicateOrder:
		return fmt.Sprintf("Order %s has already been used for a confirmation.", result.OrderID)
	case domain.OutcomeDuplicateIntent:
		return "This payment reference has already been used for a confirmation."
	default:
		return "We could not verify this payment with the payment provider."
	}
}

func confirmFailureMessage(err error) string {
	if apperrors.HasCode(err, apperrors.CodeTransport) {
		return "Your payment was recorded but access could not be granted automatically. Please contact an admin."
	}
	return "Something went wrong while verifying your payment. Please contact an admin."
}

var errArtifactIncomplete = errors.New("confirmation needs an image and the payment reference")

// matchArtifact requires an image attachment and the exact intent ref as a
// standalone token, optionally wrapped in backticks.
func matchArtifact(msg transport.Message, intentRef string) (transport.Attachment, error) {
	image, ok := msg.FirstImage()
	if !ok {
		return transport.Attachment{}, errArtifactIncomplete
	}
	for _, token := range strings.Fields(msg.Content) {
		if strings.Trim(token, "`") == intentRef {
			return image, nil
		}
	}
	return transport.Attachment{}, errArtifactIncomplete
}
