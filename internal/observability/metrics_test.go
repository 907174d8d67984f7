package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.ConversationStarted()
		m.ConversationFinished("done")
		m.StepTimedOut("AWAITING_CURRENCY")
		m.RecordVerification("ACCEPTED")
		m.RoleGrantFailed()
	})
}

func TestConversationCounters(t *testing.T) {
	m := NewMetrics()

	m.ConversationStarted()
	m.ConversationStarted()
	m.ConversationFinished("timeout")
	m.StepTimedOut("AWAITING_AMOUNT")
	m.RecordVerification("DUPLICATE_ORDER")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.conversationsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversationsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversationsFinished.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepTimeouts.WithLabelValues("AWAITING_AMOUNT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("DUPLICATE_ORDER")))
}

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/v1/things/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/things/abc", nil))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/v1/things/:id", "GET", "204")))
}
