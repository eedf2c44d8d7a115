package dispatcher

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Delivery headers. The signature is an HMAC-SHA256 of the raw body keyed
// by the schedule's secret; receivers check it with VerifySignature.
const (
	headerEventID     = "X-EasyTrigger-Event-ID"
	headerExecutionID = "X-EasyTrigger-Execution-ID"
	headerSignature   = "X-EasyTrigger-Signature"
)

// HTTPWebhookSender delivers fire events as signed JSON POSTs.
type HTTPWebhookSender struct {
	client *http.Client
}

func NewHTTPWebhookSender() *HTTPWebhookSender {
	// Per-request deadlines come from the request context, not the client.
	return &HTTPWebhookSender{client: &http.Client{}}
}

func (s *HTTPWebhookSender) Send(ctx context.Context, req WebhookRequest) WebhookResult {
	start := time.Now()
	fail := func(err error) WebhookResult {
		return WebhookResult{Error: err, Duration: time.Since(start)}
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return fail(fmt.Errorf("marshal: %w", err))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerEventID, req.AttemptID)
	httpReq.Header.Set(headerExecutionID, req.Payload.ExecutionID)
	httpReq.Header.Set(headerSignature, computeSignature(req.Secret, body))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fail(fmt.Errorf("send: %w", err))
	}
	defer resp.Body.Close()

	return WebhookResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is the receiver-side check for delivered webhooks.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
