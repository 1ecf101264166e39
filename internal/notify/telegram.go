package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/config"
)

const defaultAPIBase = "https://api.telegram.org"

// TelegramSink delivers messages through the Telegram bot API. A send is
// attempted a bounded number of times with growing backoff; after that the
// message is dropped with an error log. Delivery failure never rolls back
// the notification flag upstream.
type TelegramSink struct {
	apiBase string
	token   string
	chats   map[Class]string
	client  *http.Client
	retries int
	logger  *zap.Logger
}

func NewTelegramSink(cfg config.TelegramConfig, logger *zap.Logger) *TelegramSink {
	retries := cfg.SendRetries
	if retries <= 0 {
		retries = 3
	}
	return &TelegramSink{
		apiBase: defaultAPIBase,
		token:   cfg.BotToken,
		chats: map[Class]string{
			ClassAvailableAlert: cfg.AvailableChatID,
			ClassStatusReport:   cfg.ReportChatID,
		},
		client:  &http.Client{Timeout: 15 * time.Second},
		retries: retries,
		logger:  logger,
	}
}

// WithAPIBase overrides the Telegram API endpoint; used by tests.
func (s *TelegramSink) WithAPIBase(base string) *TelegramSink {
	s.apiBase = base
	return s
}

func (s *TelegramSink) Send(ctx context.Context, class Class, domain, message string) error {
	chatID, ok := s.chats[class]
	if !ok || chatID == "" {
		return fmt.Errorf("no chat configured for class %q", class)
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * 2 * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = s.sendOnce(ctx, chatID, message)
		if lastErr == nil {
			s.logger.Debug("telegram message sent",
				zap.String("class", string(class)),
				zap.String("domain", domain),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		s.logger.Warn("telegram send failed",
			zap.String("class", string(class)),
			zap.String("domain", domain),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}

	return fmt.Errorf("telegram send gave up after %d attempts: %w", s.retries, lastErr)
}

// SendChat delivers a message to an explicit chat ID. The control-plane bot
// uses it to answer commands in whichever chat issued them.
func (s *TelegramSink) SendChat(ctx context.Context, chatID, message string) error {
	return s.sendOnce(ctx, chatID, message)
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (s *TelegramSink) sendOnce(ctx context.Context, chatID, message string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      message,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post sendMessage: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendMessage returned status %d", resp.StatusCode)
	}
	return nil
}
