package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"sendtime_notifier/internal/domain/notification"
)

// SMSSender posts messages to an HTTP SMS gateway.
type SMSSender struct {
	url    string
	token  string
	client *http.Client
}

func NewSMSSender(url, token string, client *http.Client) *SMSSender {
	if client == nil {
		client = &http.Client{}
	}
	return &SMSSender{url: url, token: token, client: client}
}

type smsRequest struct {
	To        string `json:"to"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

func (s *SMSSender) Channel() notification.Channel { return notification.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, e *notification.QueueEntry, to notification.Recipient) error {
	if to.Phone == "" {
		return fmt.Errorf("%w: sms", ErrNoAddress)
	}
	payload, err := json.Marshal(smsRequest{To: to.Phone, Message: e.Body, Reference: strconv.FormatInt(e.ID, 10)})
	if err != nil {
		return fmt.Errorf("encode sms request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
