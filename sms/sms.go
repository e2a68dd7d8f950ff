// Package sms abstracts outbound SMS delivery. The otp package only requires
// that a dispatch was accepted by the provider; delivery outcome is tracked
// by the provider side.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DispatchResult reports the provider's acceptance of a message.
type DispatchResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// Sender dispatches a single SMS message.
type Sender interface {
	Send(ctx context.Context, to, body string) (*DispatchResult, error)
}

// VerificationMessage renders the fixed template used for phone verification
// codes. The trailing app hash lets the mobile client auto-read the code
// (Android SMS Retriever format).
func VerificationMessage(code, appHash string) string {
	return fmt.Sprintf("%s est votre code de vérification MyCoach.\n\n%s", code, appHash)
}

// ---- HTTP Provider ----

// HTTPSender posts messages to an SMS gateway's JSON API.
type HTTPSender struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

// NewHTTPSender creates a sender for the configured gateway endpoint.
func NewHTTPSender(endpoint, apiKey, from string) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSender) Send(ctx context.Context, to, body string) (*DispatchResult, error) {
	payload, err := json.Marshal(map[string]string{
		"from": s.from,
		"to":   to,
		"body": body,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms: dispatch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DispatchResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("provider returned status %d", resp.StatusCode),
		}, nil
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("sms: decode provider response: %w", err)
	}

	return &DispatchResult{Success: true, ProviderMessageID: out.MessageID}, nil
}

// ---- Memory Sender ----

// SentMessage is one message captured by MemorySender.
type SentMessage struct {
	To   string
	Body string
}

// MemorySender records messages instead of sending them. For tests.
type MemorySender struct {
	mu       sync.Mutex
	messages []SentMessage
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(ctx context.Context, to, body string) (*DispatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, SentMessage{To: to, Body: body})
	return &DispatchResult{
		Success:           true,
		ProviderMessageID: fmt.Sprintf("mem-%d", len(s.messages)),
	}, nil
}

// Messages returns a copy of everything captured so far.
func (s *MemorySender) Messages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.messages))
	copy(out, s.messages)
	return out
}
