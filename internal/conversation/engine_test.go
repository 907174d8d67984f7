package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/clock"
	"github.com/spec-kit/premium-verification/internal/domain"
	"github.com/spec-kit/premium-verification/internal/gateway/gatewaytest"
	"github.com/spec-kit/premium-verification/internal/transport"
	"github.com/spec-kit/premium-verification/internal/transport/transporttest"
	apperrors "github.com/spec-kit/premium-verification/pkg/util/errorutil"
)

const (
	owner   = "user-1"
	channel = "chan-1"
)

var screenshot = transport.Attachment{URL: "https://cdn.example/receipt.png", Filename: "receipt.png", ContentType: "image/png"}

type stubConfirmer struct {
	mu          sync.Mutex
	submissions []domain.Submission
	result      domain.VerificationResult
	err         error
}

func (c *stubConfirmer) Confirm(_ context.Context, sub domain.Submission) (domain.VerificationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions = append(c.submissions, sub)
	return c.result, c.err
}

type harness struct {
	engine    *Engine
	transport *transporttest.Fake
	gateway   *gatewaytest.Fake
	confirmer *stubConfirmer
	clock     *clock.FakeClock
	session   Session
}

func newHarness() *harness {
	h := &harness{
		transport: transporttest.New(),
		gateway:   gatewaytest.New(),
		confirmer: &stubConfirmer{result: domain.VerificationResult{Outcome: domain.OutcomeAccepted}},
		clock:     clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		session:   Session{TicketID: "ticket-1", UserID: "u-1", ExternalUserID: owner, ChannelRef: channel},
	}
	h.engine = NewEngine(EngineDependencies{
		Transport: h.transport,
		Gateway:   h.gateway,
		Confirmer: h.confirmer,
		Clock:     h.clock,
		Logger:    zap.NewNop(),
	}, testConfig())
	return h
}

func testConfig() Config {
	return Config{
		CurrencyTimeout:     3 * time.Minute,
		AmountTimeout:       3 * time.Minute,
		OrderIDTimeout:      5 * time.Minute,
		ArtifactTimeout:     5 * time.Minute,
		PresetAmounts:       []decimal.Decimal{decimal.RequireFromString("59.95"), decimal.RequireFromString("168.95")},
		OrderIDMaxLength:    50,
		EntitlementDuration: 30 * 24 * time.Hour,
	}
}

type runResult struct {
	out Outcome
	err error
}

func (h *harness) runAsync() <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		out, err := h.engine.Run(context.Background(), h.session)
		done <- runResult{out, err}
	}()
	return done
}

// start runs an attempt and waits for its currency prompt, so messages said
// afterwards are not discarded as stale.
func (h *harness) start(t *testing.T) <-chan runResult {
	t.Helper()
	before := len(h.transport.Prompts())
	done := h.runAsync()
	require.True(t, h.transport.WaitForPrompts(before+1, time.Second))
	return done
}

func TestRunCompletesHappyPath(t *testing.T) {
	h := newHarness()
	h.gateway.NextRef = "pi_abc"
	done := h.start(t)

	h.transport.Say(channel, owner, "usd")
	h.transport.Say(channel, "someone-else", "EUR")
	h.transport.Say(channel, owner, "-5")
	h.transport.Say(channel, owner, "59.95")
	h.transport.Say(channel, owner, "ORD1")
	h.transport.Say(channel, owner, "here you go `pi_abc`", screenshot)

	res := <-done
	out, err := res.out, res.err
	require.NoError(t, err)

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, domain.CurrencyUSD, out.Request.Currency)
	assert.True(t, decimal.RequireFromString("59.95").Equal(out.Request.Amount))
	assert.Equal(t, "ORD1", out.Request.OrderID)
	assert.Equal(t, "pi_abc", out.Request.IntentRef)

	require.Len(t, h.confirmer.submissions, 1)
	assert.Equal(t, domain.Submission{
		UserID:      "u-1",
		TicketID:    "ticket-1",
		IntentRef:   "pi_abc",
		ArtifactRef: screenshot.URL,
	}, h.confirmer.submissions[0])

	prompts := h.transport.Prompts()
	var amountRetries int
	for _, p := range prompts {
		if assert.Equal(t, channel, p.ChannelRef) && containsAll(p.Prompt.Content, "positive number") {
			amountRetries++
		}
	}
	assert.Equal(t, 1, amountRetries)
	assert.Contains(t, h.transport.LastPrompt().Prompt.Content, "30 days")
	assert.Zero(t, h.clock.PendingCount())
}

func TestRunRejectsIncompleteArtifacts(t *testing.T) {
	h := newHarness()
	h.gateway.NextRef = "pi_abc"
	done := h.start(t)

	h.transport.Say(channel, owner, "GBP")
	h.transport.Say(channel, owner, "£10")
	h.transport.Say(channel, owner, "ORD9")
	h.transport.Say(channel, owner, "pi_abc")
	h.transport.Say(channel, owner, "no reference here", screenshot)
	h.transport.Say(channel, owner, "pi_abcd", screenshot)
	h.transport.Say(channel, owner, "`pi_abc`", transport.Attachment{Filename: "notes.txt", ContentType: "text/plain"})
	h.transport.Say(channel, owner, "`pi_abc`", screenshot)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StateDone, res.out.State)
	require.Len(t, h.confirmer.submissions, 1)

	var retries int
	for _, p := range h.transport.Prompts() {
		if containsAll(p.Prompt.Content, "Please attach an image") {
			retries++
		}
	}
	assert.Equal(t, 4, retries)
}

func TestStepTimeoutOffersRestartAndDiscardsState(t *testing.T) {
	h := newHarness()
	done := h.start(t)
	h.transport.Say(channel, owner, "usd")

	require.True(t, h.transport.WaitForPrompts(2, time.Second))
	h.clock.WaitForTimers(1)
	h.clock.Advance(3 * time.Minute)

	res := <-done
	require.ErrorIs(t, res.err, ErrStepTimeout)
	assert.True(t, apperrors.HasCode(res.err, apperrors.CodeStepTimeout))
	assert.Equal(t, StateAwaitingAmount, res.out.State)
	assert.Equal(t, []string{RestartOption}, h.transport.LastPrompt().Prompt.Options)
	assert.Empty(t, h.confirmer.submissions)

	// A fresh attempt starts over at the currency step and treats an amount
	// as an invalid currency.
	promptsBefore := len(h.transport.Prompts())
	second := h.start(t)
	h.transport.Say(channel, owner, "59.95")

	require.True(t, h.transport.WaitForPrompts(promptsBefore+2, time.Second))
	prompts := h.transport.Prompts()
	assert.Equal(t, []string{"USD", "EUR", "GBP"}, prompts[promptsBefore].Prompt.Options)
	assert.Contains(t, prompts[promptsBefore+1].Prompt.Content, "Please pick one of USD, EUR or GBP.")

	h.clock.WaitForTimers(1)
	h.clock.Advance(3 * time.Minute)
	res = <-second
	require.ErrorIs(t, res.err, ErrStepTimeout)
	assert.Equal(t, StateAwaitingCurrency, res.out.State)
}

func TestRestartIgnoresMessagesFromExpiredAttempt(t *testing.T) {
	h := newHarness()
	first := h.start(t)
	h.clock.WaitForTimers(1)
	h.clock.Advance(3 * time.Minute)

	res := <-first
	require.ErrorIs(t, res.err, ErrStepTimeout)
	assert.Equal(t, StateAwaitingCurrency, res.out.State)

	// Typed after the timeout, before the restart.
	h.transport.Say(channel, owner, "EUR")

	promptsBefore := len(h.transport.Prompts())
	second := h.start(t)
	h.transport.Say(channel, owner, "GBP")

	require.True(t, h.transport.WaitForPrompts(promptsBefore+2, time.Second))
	prompts := h.transport.Prompts()
	assert.Equal(t, []string{"USD", "EUR", "GBP"}, prompts[promptsBefore].Prompt.Options)
	assert.Contains(t, prompts[promptsBefore+1].Prompt.Content, "in GBP")

	h.clock.WaitForTimers(1)
	h.clock.Advance(3 * time.Minute)
	res = <-second
	require.ErrorIs(t, res.err, ErrStepTimeout)
	assert.Equal(t, StateAwaitingAmount, res.out.State)
}

func TestRetryResetsDeadline(t *testing.T) {
	h := newHarness()
	done := h.runAsync()

	require.True(t, h.transport.WaitForPrompts(1, time.Second))
	h.clock.WaitForTimers(1)
	h.clock.Advance(2 * time.Minute)

	h.transport.Say(channel, owner, "JPY")
	require.True(t, h.transport.WaitForPrompts(2, time.Second))
	h.clock.WaitForTimers(1)

	// Two minutes into the second wait the first deadline would have passed.
	h.clock.Advance(2 * time.Minute)
	select {
	case res := <-done:
		t.Fatalf("attempt ended early: %v", res.err)
	default:
	}

	h.clock.Advance(time.Minute)
	res := <-done
	require.ErrorIs(t, res.err, ErrStepTimeout)
}

func TestCancelledRunDoesNotOfferRestart(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Run(ctx, h.session)
		done <- err
	}()

	require.True(t, h.transport.WaitForPrompts(1, time.Second))
	cancel(ErrSuperseded)

	err := <-done
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Len(t, h.transport.Prompts(), 1)
}

func TestGatewayFailureEndsAttempt(t *testing.T) {
	h := newHarness()
	h.gateway.CreateErr = assert.AnError
	done := h.start(t)
	h.transport.Say(channel, owner, "eur")
	h.transport.Say(channel, owner, "168.95")
	h.transport.Say(channel, owner, "ORD2")

	res := <-done
	out, err := res.out, res.err
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewayFailed))
	assert.Equal(t, StateIntentCreated, out.State)
	assert.Equal(t, []string{RestartOption}, h.transport.LastPrompt().Prompt.Options)
}

func TestConfirmerTransportFailureIsReported(t *testing.T) {
	h := newHarness()
	h.gateway.NextRef = "pi_abc"
	h.confirmer.err = apperrors.NewTransportError("grant_role", assert.AnError)
	done := h.start(t)
	h.transport.Say(channel, owner, "usd")
	h.transport.Say(channel, owner, "59.95")
	h.transport.Say(channel, owner, "ORD1")
	h.transport.Say(channel, owner, "pi_abc", screenshot)

	res := <-done
	out, err := res.out, res.err
	require.Error(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Contains(t, h.transport.LastPrompt().Prompt.Content, "contact an admin")
}

func TestOutcomeMessages(t *testing.T) {
	e := NewEngine(EngineDependencies{}, Config{})
	assert.Equal(t, "Payment verified. Your premium access is active.",
		e.outcomeMessage(domain.VerificationResult{Outcome: domain.OutcomeAccepted}))
	assert.Contains(t, e.outcomeMessage(domain.VerificationResult{Outcome: domain.OutcomeDuplicateOrder, OrderID: "ORD1"}), "ORD1")
	assert.Contains(t, e.outcomeMessage(domain.VerificationResult{Outcome: domain.OutcomeGatewayVerificationFailed}), "payment provider")
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
