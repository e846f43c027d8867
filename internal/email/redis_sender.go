package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MockEmailTTL is how long captured messages stay in redis.
const MockEmailTTL = 5 * time.Minute

// MockEmail is the JSON stored for each captured message.
type MockEmail struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
}

// RedisSender captures messages in redis lists keyed by recipient, so
// end-to-end tests can read what would have been sent.
type RedisSender struct {
	client *redis.Client
	from   string
	logger *zap.Logger
}

func NewRedisSender(client *redis.Client, from string, logger *zap.Logger) *RedisSender {
	return &RedisSender{client: client, from: from, logger: logger}
}

// MockEmailKey is the list holding messages captured for a recipient.
func MockEmailKey(to string) string {
	return "mockemail:" + strings.ToLower(to)
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	data, err := json.Marshal(MockEmail{
		To:      strings.Join(to, ", "),
		From:    s.from,
		Subject: subject,
		Body:    string(rawMessage),
		SentAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, rcpt := range to {
		key := MockEmailKey(rcpt)
		pipe.LPush(ctx, key, data)
		pipe.Expire(ctx, key, MockEmailTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store mock email: %w", err)
	}

	s.logger.Debug("Mock email stored in redis", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// LatestMockEmail returns the newest captured message for a recipient.
func LatestMockEmail(ctx context.Context, client *redis.Client, to string) (*MockEmail, error) {
	raw, err := client.LIndex(ctx, MockEmailKey(to), 0).Result()
	if err != nil {
		return nil, err
	}
	var m MockEmail
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode mock email: %w", err)
	}
	return &m, nil
}
