package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kazichain-ussd/pkg/logging"
	"kazichain-ussd/pkg/metrics"
	"kazichain-ussd/pkg/resilience"

	"go.uber.org/zap"
)

// DefaultEndpoint is the Africa's Talking bulk messaging endpoint.
const DefaultEndpoint = "https://api.africastalking.com/version1/messaging"

// AfricasTalkingConfig holds gateway credentials.
type AfricasTalkingConfig struct {
	Username string
	APIKey   string
	SenderID string
	Endpoint string
	Timeout  time.Duration
}

// AfricasTalking sends SMS through the Africa's Talking REST API.
type AfricasTalking struct {
	config AfricasTalkingConfig
	client *http.Client
	guard  *resilience.Guard
	logger *logging.Logger
}

// NewAfricasTalking creates a sender. Calls go through a breaker named "sms".
func NewAfricasTalking(config AfricasTalkingConfig, collector metrics.Collector) *AfricasTalking {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &AfricasTalking{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		guard:  resilience.NewGuard("sms", resilience.DefaultConfig().WithTimeout(config.Timeout), collector),
		logger: logging.Global().Named("notify").Named("africastalking"),
	}
}

// DefaultSenderID returns the configured short code or alphanumeric sender.
func (a *AfricasTalking) DefaultSenderID() string {
	return a.config.SenderID
}

// Guard exposes the breaker for status reporting.
func (a *AfricasTalking) Guard() *resilience.Guard {
	return a.guard
}

type sendResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Send posts one message.
func (a *AfricasTalking) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return a.guard.Execute(ctx, "send", func(ctx context.Context) error {
		return a.post(ctx, msg)
	})
}

func (a *AfricasTalking) post(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("username", a.config.Username)
	form.Set("to", msg.To)
	form.Set("message", msg.Body)
	if from := msg.SenderID; from != "" {
		form.Set("from", from)
	} else if a.config.SenderID != "" {
		form.Set("from", a.config.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("apiKey", a.config.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("notify: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("notify: decode response: %w", err)
	}
	for _, r := range out.SMSMessageData.Recipients {
		// 100 Processed, 101 Sent, 102 Queued
		if r.StatusCode < 100 || r.StatusCode > 102 {
			return fmt.Errorf("%w: %s (%s)", ErrRejected, r.Status, r.Number)
		}
		a.logger.Debug("sms accepted",
			zap.String("to", r.Number),
			zap.String("message_id", r.MessageID),
			zap.String("status", r.Status),
		)
	}
	if len(out.SMSMessageData.Recipients) == 0 {
		return fmt.Errorf("%w: %s", ErrRejected, out.SMSMessageData.Message)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. It is used
// when no gateway credentials are configured.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{logger: logging.Global().Named("notify").Named("log")}
}

// Send logs msg.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.Info("sms",
		zap.String("to", msg.To),
		zap.String("from", msg.SenderID),
		zap.String("body", msg.Body),
	)
	return nil
}

var (
	_ Sender = (*AfricasTalking)(nil)
	_ Sender = (*LogSender)(nil)
)
