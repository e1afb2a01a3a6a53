package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/billing"
	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

func TestCreatePaymentIntentHandler(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/payment-intent", "acct-1", gin.H{"amount": 25, "plan": "Pro"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decode(t, resp)
	assert.Equal(t, "pi_new_secret", body["clientSecret"])
	assert.EqualValues(t, 2500, body["amount"])
	require.Len(t, env.card.created, 1)
	assert.Equal(t, "acct-1", env.card.created[0]["accountId"])
	assert.Equal(t, "Pro", env.card.created[0]["plan"])
}

func TestCreatePaymentIntentHandlerErrors(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/payment-intent", "acct-1", gin.H{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(t, http.MethodPost, "/payment-intent", "acct-1", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	env.card.err = errors.New("card network unreachable")
	resp = env.do(t, http.MethodPost, "/payment-intent", "acct-1", gin.H{"amount": 10})
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, decode(t, resp)["error"], "card network unreachable")
}

func TestPaymentSuccessHandlerIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/me", "acct-1", nil)
	env.card.intents["pi_123"] = billing.Intent{
		ID:       "pi_123",
		Status:   billing.IntentSucceeded,
		Amount:   2500,
		Currency: "usd",
		Method:   "card",
		Metadata: map[string]string{"accountId": "acct-1", "plan": "Pro"},
	}

	resp := env.do(t, http.MethodPost, "/payment-success", "acct-1", gin.H{"paymentIntentId": "pi_123"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decode(t, resp)
	assert.Equal(t, "Payment successful", body["message"])
	assert.Equal(t, false, body["duplicate"])
	assert.Equal(t, "Pro", body["plan"])
	assert.EqualValues(t, 10, body["jobPostQuota"])

	resp = env.do(t, http.MethodPost, "/payment-success", "acct-1", gin.H{"paymentIntentId": "pi_123"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, decode(t, resp)["duplicate"])
	assert.Len(t, env.store.PaymentRecords(), 1)
}

func TestPaymentSuccessHandlerMissingIntent(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/payment-success", "acct-1", gin.H{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateAndCancelSubscriptionHandlers(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/create-subscription", "acct-1", gin.H{"plan": "Basic", "paymentMethodId": "pm_card_visa"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decode(t, resp)
	assert.Equal(t, "Basic", body["plan"])
	assert.Equal(t, "sub_1", body["subscription"].(map[string]any)["id"])

	acc, err := env.store.FindAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, acc.AutoRenew)
	assert.Equal(t, "sub_1", acc.StripeSubscriptionID)

	resp = env.do(t, http.MethodPost, "/cancel-subscription", "acct-1", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, false, decode(t, resp)["autoRenew"])

	acc, err = env.store.FindAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanBasic, acc.Plan)
	assert.False(t, acc.AutoRenew)
}

func TestCreateSubscriptionHandlerRejectsTrial(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/create-subscription", "acct-1", gin.H{"plan": "Free_Trial", "paymentMethodId": "pm_card_visa"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStripeWebhookPaymentSucceeded(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/me", "acct-1", nil)
	env.card.intents["pi_hook"] = billing.Intent{
		ID:       "pi_hook",
		Status:   billing.IntentSucceeded,
		Amount:   1000,
		Currency: "usd",
		Metadata: map[string]string{"accountId": "acct-1", "plan": "Basic"},
	}
	payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_hook","object":"payment_intent"}}}`

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		env.router.ServeHTTP(resp, signedWebhookRequest(t, testWebhookSecret, payload))
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}

	assert.Len(t, env.store.PaymentRecords(), 1)
	acc, err := env.store.FindAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanBasic, acc.Plan)
}

func TestStripeWebhookUpstreamFailureIsRetried(t *testing.T) {
	env := newTestEnv(t)
	env.card.err = errors.New("timeout")
	payload := `{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_x","object":"payment_intent"}}}`

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, signedWebhookRequest(t, testWebhookSecret, payload))
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestStripeWebhookSubscriptionDeleted(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/create-subscription", "acct-1", gin.H{"plan": "Pro", "paymentMethodId": "pm_card_visa"})
	payload := `{"id":"evt_3","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1"}}}`

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, signedWebhookRequest(t, testWebhookSecret, payload))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	acc, err := env.store.FindAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.False(t, acc.AutoRenew)
	assert.Equal(t, models.PlanPro, acc.Plan)
}

func TestStripeWebhookBadSignature(t *testing.T) {
	env := newTestEnv(t)
	payload := `{"id":"evt_4","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_x"}}}`

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, signedWebhookRequest(t, "whsec_other", payload))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)
	payload := `{"id":"evt_5","object":"event","type":"invoice.created","data":{"object":{"id":"in_1","object":"invoice"}}}`

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, signedWebhookRequest(t, testWebhookSecret, payload))
	assert.Equal(t, http.StatusOK, resp.Code)
}
