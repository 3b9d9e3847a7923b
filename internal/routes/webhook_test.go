package routes

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"medipay/internal/handlers"
	"medipay/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72/webhook"
)

const stripeSecret = "whsec_routes"

func stripeEvent(eventType, reference string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":"pi_7","object":"payment_intent","metadata":{"reference":%q}}}}`,
		eventType, reference)
}

func stripeHeaders(payload, secret string) map[string]string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), secret)
	return map[string]string{handlers.StripeSignatureHeader: fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestStripeWebhook_SettlesCardDeposit(t *testing.T) {
	s := newTestServer(t, func(d *Dependencies) { d.StripeWebhookSecret = stripeSecret })

	status, body := s.do(t, call{method: http.MethodPost, path: "/api/deposits", headers: asUser(t),
		body: map[string]interface{}{"amount": 5000, "operator": "carte-bancaire"}})
	require.Equal(t, fiber.StatusAccepted, status, body)
	reference := data(t, body)["reference"].(string)

	payload := stripeEvent("payment_intent.succeeded", reference)
	status, _ = s.do(t, call{method: http.MethodPost, path: "/webhook/stripe", body: payload,
		headers: stripeHeaders(payload, "whsec_forged")})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, int64(0), s.balance(t, patient))

	status, body = s.do(t, call{method: http.MethodPost, path: "/webhook/stripe", body: payload,
		headers: stripeHeaders(payload, stripeSecret)})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, int64(5000), s.balance(t, patient))

	status, body = s.do(t, call{method: http.MethodPost, path: "/webhook/stripe", body: payload,
		headers: stripeHeaders(payload, stripeSecret)})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["already_resolved"])
	assert.Equal(t, int64(5000), s.balance(t, patient))

	ignored := stripeEvent("payment_intent.created", reference)
	status, body = s.do(t, call{method: http.MethodPost, path: "/webhook/stripe", body: ignored,
		headers: stripeHeaders(ignored, stripeSecret)})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Event ignored", body["message"])
}

func TestStripeWebhook_OnlySettlesCardDeposits(t *testing.T) {
	s := newTestServer(t, func(d *Dependencies) { d.StripeWebhookSecret = stripeSecret })

	status, body := s.do(t, call{method: http.MethodPost, path: "/api/deposits", headers: asUser(t),
		body: map[string]interface{}{"amount": 10000, "operator": "moov", "phone_number": "+22890000000"}})
	require.Equal(t, fiber.StatusAccepted, status, body)
	reference := data(t, body)["reference"].(string)

	payload := stripeEvent("payment_intent.succeeded", reference)
	status, _ = s.do(t, call{method: http.MethodPost, path: "/webhook/stripe", body: payload,
		headers: stripeHeaders(payload, stripeSecret)})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, int64(0), s.balance(t, patient))
}

func TestDepositWebhook_LateSuccessIsFlagged(t *testing.T) {
	s := newTestServer(t)
	logs := captureLogs(t)

	status, body := s.do(t, call{method: http.MethodPost, path: "/api/deposits", headers: asUser(t),
		body: map[string]interface{}{"amount": 10000, "operator": "moov", "phone_number": "+22890000000"}})
	require.Equal(t, fiber.StatusAccepted, status, body)
	reference := data(t, body)["reference"].(string)

	hook := func(outcome string) (int, map[string]interface{}) {
		return s.do(t, call{method: http.MethodPost, path: "/webhook/moov",
			headers: map[string]string{middleware.OperatorKeyHeader: moovKey},
			body:    map[string]interface{}{"reference": reference, "status": outcome}})
	}

	status, _ = hook("failure")
	require.Equal(t, fiber.StatusOK, status)
	status, _ = hook("failure")
	require.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, logs.String(), "manual reconciliation", "a matching repeat is not flagged")

	status, body = hook("success")
	assert.Equal(t, fiber.StatusOK, status, "the operator still gets an ack")
	assert.Equal(t, true, body["already_resolved"])
	assert.Equal(t, int64(0), s.balance(t, patient))

	out := logs.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, "manual reconciliation")
	assert.Contains(t, out, `"reference":"`+reference+`"`)
	assert.Contains(t, out, `"outcome":"success"`)
	assert.Contains(t, out, `"status":"failed"`)
}
