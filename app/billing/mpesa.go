package billing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"
	"github.com/sethmwebi/medrin-jobs-backend/app/store"
)

// mpesaTimestampLayout is the Daraja timestamp format, in East Africa Time.
const mpesaTimestampLayout = "20060102150405"

var eat = time.FixedZone("EAT", 3*60*60)

type MobileMoneyRequest struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CustomerMessage   string `json:"customerMessage"`
	Amount            int64  `json:"amount"`
}

// CallbackOutcome says what a delivered callback did.
type CallbackOutcome string

const (
	OutcomeApplied   CallbackOutcome = "applied"
	OutcomeFailed    CallbackOutcome = "failed" // customer cancelled, timeout, insufficient funds
	OutcomeDuplicate CallbackOutcome = "duplicate"
	OutcomeRejected  CallbackOutcome = "rejected"
)

// STKPassword is base64(shortcode + passkey + timestamp).
func STKPassword(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

// NormalizePhone turns the local formats customers type (07..., 7..., +254...)
// into the 2547XXXXXXXX / 2541XXXXXXXX form M-Pesa expects.
func NormalizePhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")
	switch {
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case len(p) == 9:
		p = "254" + p
	}
	if len(p) != 12 || !strings.HasPrefix(p, "254") || (p[3] != '7' && p[3] != '1') {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid phone number %q", phone)
		}
	}
	return p, nil
}

// InitiateMobileMoneyRequest sends an STK push for plan to the customer's
// phone and remembers the checkout request id on the account so the
// callback can be matched back to it.
func (t *Tracker) InitiateMobileMoneyRequest(ctx context.Context, accountID string, plan models.Plan, phone string) (MobileMoneyRequest, error) {
	const op = "initiate_mobile_money"

	spec, err := t.catalog.Lookup(plan)
	if err != nil {
		return MobileMoneyRequest{}, validationError(op, err.Error())
	}
	if spec.LocalPrice <= 0 {
		return MobileMoneyRequest{}, validationError(op, fmt.Sprintf("plan %q cannot be purchased with M-Pesa", plan))
	}
	msisdn, err := NormalizePhone(phone)
	if err != nil {
		return MobileMoneyRequest{}, validationError(op, err.Error())
	}
	if _, err := t.store.FindAccount(ctx, accountID); err != nil {
		return MobileMoneyRequest{}, storeError(op, err)
	}

	token, err := t.mobile.AccessToken(ctx)
	if err != nil {
		return MobileMoneyRequest{}, upstreamError(op, err)
	}
	ts := t.clock().In(eat).Format(mpesaTimestampLayout)
	req := STKPushRequest{
		BusinessShortCode: t.mpesa.ShortCode,
		Password:          STKPassword(t.mpesa.ShortCode, t.mpesa.PassKey, ts),
		Timestamp:         ts,
		TransactionType:   t.mpesa.TransactionType,
		Amount:            spec.LocalPrice,
		PartyA:            msisdn,
		PartyB:            t.mpesa.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       t.mpesa.CallbackURL,
		AccountReference:  accountReference(accountID),
		TransactionDesc:   fmt.Sprintf("%s plan", spec.Name),
	}
	resp, err := t.mobile.SubmitSTKPush(ctx, token, req)
	if err != nil {
		return MobileMoneyRequest{}, upstreamError(op, err)
	}
	if resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		return MobileMoneyRequest{}, &Error{Kind: KindUpstream, Op: op, Message: "M-Pesa rejected the request: " + resp.ResponseDescription}
	}

	err = withLockedAccount(ctx, t.store, op, accountID, func(tx store.Store, acc models.Account) error {
		if _, err := tx.UpdateAccount(ctx, acc.ID, acc.Version, models.AccountPatch{MpesaReferenceID: &resp.CheckoutRequestID}); err != nil {
			return storeError(op, err)
		}
		return nil
	})
	if err != nil {
		return MobileMoneyRequest{}, err
	}

	t.log.Info().Str("account_id", accountID).Str("checkout_request_id", resp.CheckoutRequestID).
		Str("plan", string(plan)).Int64("amount", spec.LocalPrice).Msg("stk push sent")
	return MobileMoneyRequest{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
		Amount:            spec.LocalPrice,
	}, nil
}

// AccountReference is shown on the customer's phone and capped at 12 chars.
func accountReference(accountID string) string {
	ref := strings.ReplaceAll(accountID, "-", "")
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return ref
}

// ParseCallback decodes an STK callback body. A body without a stkCallback,
// checkout request id or result code is invalid, and so is a successful
// result that lacks the paid amount or receipt number.
func ParseCallback(body []byte) (models.STKCallback, error) {
	const op = "parse_callback"

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var env models.STKCallbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return models.STKCallback{}, &Error{Kind: KindValidation, Op: op, Message: "invalid callback payload", Err: err}
	}
	if env.Body == nil || env.Body.StkCallback == nil {
		return models.STKCallback{}, validationError(op, "callback has no Body.stkCallback")
	}
	cb := *env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return models.STKCallback{}, validationError(op, "callback has no CheckoutRequestID")
	}
	if cb.ResultCode == nil {
		return models.STKCallback{}, validationError(op, "callback has no ResultCode")
	}
	if *cb.ResultCode == 0 {
		if _, err := readCallbackMetadata(cb.CallbackMetadata); err != nil {
			return models.STKCallback{}, validationError(op, err.Error())
		}
	}
	return cb, nil
}

type callbackDetails struct {
	Amount  int64
	Receipt string
	Phone   string
	PaidAt  string
}

func readCallbackMetadata(meta *models.CallbackMetadata) (callbackDetails, error) {
	var d callbackDetails
	if meta == nil {
		return d, errors.New("callback has no metadata")
	}
	for _, item := range meta.Item {
		switch item.Name {
		case "Amount":
			f, err := itemFloat(item.Value)
			if err != nil {
				return d, fmt.Errorf("amount: %w", err)
			}
			d.Amount = int64(math.Round(f))
		case "MpesaReceiptNumber":
			d.Receipt = itemString(item.Value)
		case "PhoneNumber":
			d.Phone = itemString(item.Value)
		case "TransactionDate":
			d.PaidAt = itemString(item.Value)
		}
	}
	if d.Amount <= 0 {
		return d, errors.New("callback has no amount")
	}
	if d.Receipt == "" {
		return d, errors.New("callback has no receipt number")
	}
	return d, nil
}

func itemFloat(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("unexpected value %v", v)
}

func itemString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	}
	return fmt.Sprint(v)
}

// HandleMobileMoneyCallback settles an STK push. A successful callback
// records the payment, applies the plan matching the paid amount and clears
// the account's pending reference, all in one transaction. A failed
// callback changes nothing. Redelivery of an applied callback is reported
// as a duplicate.
func (t *Tracker) HandleMobileMoneyCallback(ctx context.Context, cb models.STKCallback) (CallbackOutcome, error) {
	const op = "mpesa_callback"

	outcome, err := t.handleCallback(ctx, op, cb)
	callbackOutcomes.WithLabelValues(string(outcome)).Inc()
	return outcome, err
}

func (t *Tracker) handleCallback(ctx context.Context, op string, cb models.STKCallback) (CallbackOutcome, error) {
	if cb.CheckoutRequestID == "" || cb.ResultCode == nil {
		return OutcomeRejected, validationError(op, "callback has no CheckoutRequestID or ResultCode")
	}
	logger := t.log.With().Str("checkout_request_id", cb.CheckoutRequestID).Logger()

	if *cb.ResultCode != 0 {
		logger.Warn().Int("result_code", *cb.ResultCode).Str("result_desc", cb.ResultDesc).Msg("mpesa payment failed")
		return OutcomeFailed, nil
	}

	details, err := readCallbackMetadata(cb.CallbackMetadata)
	if err != nil {
		return OutcomeRejected, validationError(op, err.Error())
	}

	if _, err := t.store.FindPaymentRecordByExternalID(ctx, details.Receipt); err == nil {
		logger.Info().Str("receipt", details.Receipt).Msg("mpesa callback already applied")
		return OutcomeDuplicate, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return OutcomeRejected, storeError(op, err)
	}

	key := "mpesa:" + cb.CheckoutRequestID
	if !t.claim(ctx, key) {
		return OutcomeDuplicate, nil
	}

	var spec PlanSpec
	rec := models.PaymentRecord{
		Amount:     details.Amount,
		Currency:   "KES",
		Method:     models.PaymentMethodMobileMoney,
		Status:     models.PaymentStatusSucceeded,
		ExternalID: details.Receipt,
	}
	find := func(tx store.Store) (models.Account, error) {
		acc, err := tx.FindAccountByMpesaReference(ctx, cb.CheckoutRequestID)
		if err != nil {
			return acc, err
		}
		spec, err = t.catalog.PlanForLocalAmount(details.Amount)
		return acc, err
	}
	cleared := ""
	acc, created, err := t.recordAndApply(ctx, op, find, rec, &spec, models.AccountPatch{MpesaReferenceID: &cleared})
	if err != nil {
		t.release(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn().Msg("mpesa callback for unknown checkout request")
		}
		return OutcomeRejected, err
	}
	if !created {
		return OutcomeDuplicate, nil
	}

	logger.Info().Str("account_id", acc.ID).Str("receipt", details.Receipt).Str("plan", string(spec.Name)).
		Int64("amount", details.Amount).Str("phone", details.Phone).Msg("mpesa payment applied")
	return OutcomeApplied, nil
}
