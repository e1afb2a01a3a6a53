package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stkCallback(checkoutID string, resultCode int, amount int64, receipt string) []byte {
	if resultCode != 0 {
		return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":"Request cancelled by user"}}}`, checkoutID, resultCode))
	}
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":%d},{"Name":"MpesaReceiptNumber","Value":%q},{"Name":"TransactionDate","Value":20250315123000},{"Name":"PhoneNumber","Value":254712345678}]}}}}`, checkoutID, amount, receipt))
}

func TestMpesaPayAndCallback(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/pay", "acct-1", gin.H{"plan": "Pro", "phoneNumber": "0712345678"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decode(t, resp)
	assert.Equal(t, "ws_CO_191220191020363925", body["checkoutRequestId"])
	assert.EqualValues(t, 1000, body["amount"])

	for i := 0; i < 2; i++ {
		resp = env.do(t, http.MethodPost, "/callback", "", stkCallback("ws_CO_191220191020363925", 0, 1000, "NLJ7RT61SV"))
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		body = decode(t, resp)
		assert.EqualValues(t, 0, body["ResultCode"])
		assert.Equal(t, "Accepted", body["ResultDesc"])
	}

	acc, err := env.store.FindAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, acc.Plan)
	assert.Equal(t, 10, acc.JobPostQuota)

	recs := env.store.PaymentRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, models.PaymentMethodMobileMoney, recs[0].Method)
	assert.Equal(t, "NLJ7RT61SV", recs[0].ExternalID)
}

func TestMpesaCallbackAcknowledgesUnprocessable(t *testing.T) {
	const pending = "ws_CO_191220191020363925"
	cases := map[string][]byte{
		"cancelled by user": stkCallback(pending, 1032, 0, ""),
		"unknown checkout":  stkCallback("ws_CO_unknown", 0, 1000, "NLJ7RT61SX"),
		"unmatched amount":  stkCallback(pending, 0, 750, "NLJ7RT61SY"),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.do(t, http.MethodPost, "/pay", "acct-1", gin.H{"plan": "Pro", "phoneNumber": "0712345678"})
			require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

			resp = env.do(t, http.MethodPost, "/callback", "", payload)
			assert.Equal(t, http.StatusOK, resp.Code)
			assert.Empty(t, env.store.PaymentRecords())

			acc, err := env.store.FindAccount(context.Background(), "acct-1")
			require.NoError(t, err)
			assert.Equal(t, models.PlanFreeTrial, acc.Plan)
			assert.Equal(t, pending, acc.MpesaReferenceID)
		})
	}
}

func TestMpesaCallbackRejectsInvalidPayload(t *testing.T) {
	cases := map[string]string{
		"not json":                 `{`,
		"missing body":             `{}`,
		"missing result":           `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1"}}}`,
		"missing id":               `{"Body":{"stkCallback":{"ResultCode":0}}}`,
		"success without metadata": `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok"}}}`,
		"success without receipt":  `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"Amount","Value":1000}]}}}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.do(t, http.MethodPost, "/callback", "", []byte(payload))
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestMpesaPayErrors(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/pay", "acct-1", gin.H{"plan": "Gold", "phoneNumber": "0712345678"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(t, http.MethodPost, "/pay", "acct-1", gin.H{"plan": "Pro", "phoneNumber": "12"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	env.mobile.err = errors.New("Invalid Access Token")
	resp = env.do(t, http.MethodPost, "/pay", "acct-1", gin.H{"plan": "Pro", "phoneNumber": "0712345678"})
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, decode(t, resp)["error"], "Invalid Access Token")

	acc, err := env.store.FindAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Empty(t, acc.MpesaReferenceID)
}
