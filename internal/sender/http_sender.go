package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSender is the reference PushNotificationSender implementation: one
// POST per batch to a configured push-network endpoint, grounded on the
// teacher's twilio.Client.SendSMS request/response shape.
type HTTPSender struct {
	HTTP    *http.Client
	BaseURL string

	// Remover, if set, is called with the tokens a 400 response names as
	// rejected (spec.md §4.3). Nil means rejections are logged via the
	// returned error but no installation is removed — acceptable for a
	// deployment that hasn't wired a store into cmd/dispatcher yet.
	Remover InstallationRemover
}

type sendPayload struct {
	Message    json.RawMessage `json:"message"`
	Tokens     []string        `json:"tokens"`
	Production bool            `json:"production"`
}

type sendResponse struct {
	Accepted int    `json:"accepted"`
	Message  string `json:"message"`
	// RejectedIndexes indexes into the request's Tokens, present on a 400
	// response that names specific tokens as permanently invalid rather
	// than rejecting the whole batch.
	RejectedIndexes []int `json:"rejected_indexes"`
}

// Send posts the batch and invokes callback exactly once with the outcome.
// It never retries: spec.md §7 places retry/redelivery decisions on the
// pipeline (dispatcher/trigger), not the transport.
func (h *HTTPSender) Send(ctx context.Context, req Request, callback func(Outcome)) error {
	body, err := json.Marshal(sendPayload{
		Message:    json.RawMessage(req.Message),
		Tokens:     req.Tokens,
		Production: req.Production,
	})
	if err != nil {
		callback(Outcome{Status: StatusFailed, Reason: "marshal: " + err.Error()})
		return err
	}

	endpoint := strings.TrimRight(h.BaseURL, "/") + "/" + req.Platform + "/send"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		callback(Outcome{Status: StatusFailed, Reason: err.Error()})
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.HTTP.Do(httpReq)
	if err != nil {
		callback(Outcome{Status: StatusFailed, Reason: err.Error()})
		return fmt.Errorf("%w: %v", ErrSenderConnect, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var out sendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		reason := out.Message
		if reason == "" {
			reason = "payload too large"
		}
		callback(Outcome{Status: StatusFailed, Reason: reason})
		return fmt.Errorf("%w: %s", ErrSenderPayloadTooLarge, reason)
	}

	if resp.StatusCode == http.StatusBadRequest && len(out.RejectedIndexes) > 0 {
		return h.handleRejectedTokens(ctx, req, out, callback)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := out.Message
		if reason == "" {
			reason = fmt.Sprintf("http %d", resp.StatusCode)
		}
		callback(Outcome{Receivers: out.Accepted, Status: StatusFailed, Reason: reason})
		return fmt.Errorf("send failed: %s", reason)
	}

	callback(Outcome{Receivers: out.Accepted, Status: StatusSuccess})
	return nil
}

// handleRejectedTokens is the §4.3 per-token-rejection path: the platform
// named specific tokens in the batch as permanently invalid rather than
// rejecting the whole batch. Those installations are removed and the batch
// is still reported delivered to its remaining, accepted tokens — a
// rejected token is a stale registration, not a transport failure.
func (h *HTTPSender) handleRejectedTokens(ctx context.Context, req Request, out sendResponse, callback func(Outcome)) error {
	rejected := make([]string, 0, len(out.RejectedIndexes))
	for _, idx := range out.RejectedIndexes {
		if idx >= 0 && idx < len(req.Tokens) {
			rejected = append(rejected, req.Tokens[idx])
		}
	}

	if h.Remover != nil && len(rejected) > 0 {
		if err := h.Remover.RemoveByDeviceTokens(ctx, req.VariantID, rejected); err != nil {
			callback(Outcome{Status: StatusFailed, Reason: "remove rejected installations: " + err.Error()})
			return fmt.Errorf("%w: remove installations: %v", ErrTokenRejected, err)
		}
	}

	accepted := len(req.Tokens) - len(rejected)
	callback(Outcome{Receivers: accepted, Status: StatusSuccess})
	return fmt.Errorf("%w: %d token(s) rejected and removed", ErrTokenRejected, len(rejected))
}

// NewHTTPSender builds an HTTPSender with a bounded request timeout, the
// teacher's 6-second Twilio call budget.
func NewHTTPSender(baseURL string) *HTTPSender {
	return &HTTPSender{
		HTTP:    &http.Client{Timeout: 6 * time.Second},
		BaseURL: baseURL,
	}
}
