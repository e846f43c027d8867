package email

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingSender struct{ err error }

func (f failingSender) Send(context.Context, []string, string, []byte) error { return f.err }

func TestBuildMessage(t *testing.T) {
	date := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := string(BuildMessage("from@x.test", "to@x.test", "Hello", "line one\nline two", date))

	assert.True(t, strings.HasPrefix(msg, "To: to@x.test\r\nFrom: from@x.test\r\nSubject: Hello\r\n"))
	assert.Contains(t, msg, "Date: Thu, 02 Jan 2025 03:04:05 +0000\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two\r\n"))
}

func TestFileEmailSender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "emails.log")
	s, err := NewFileEmailSender(path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), []string{"a@x.test"}, "First", []byte("body one\r\n")))
	require.NoError(t, s.Send(context.Background(), []string{"b@x.test"}, "Second", []byte("body two\r\n")))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(b)
	assert.Contains(t, content, "(To: a@x.test, Subject: First)")
	assert.Contains(t, content, "body two")
	assert.Equal(t, 2, strings.Count(content, "--- End Logged Email ---"))

	_, err = NewFileEmailSender("  ", zap.NewNop())
	assert.Error(t, err)
}

func TestRedisSender(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	s := NewRedisSender(rdb, "noreply@x.test", zap.NewNop())
	require.NoError(t, s.Send(ctx, []string{"Owner@X.test"}, "Old", []byte("1")))
	require.NoError(t, s.Send(ctx, []string{"owner@x.test"}, "New", []byte("2")))

	m, err := LatestMockEmail(ctx, rdb, "owner@x.test")
	require.NoError(t, err)
	assert.Equal(t, "New", m.Subject)
	assert.Equal(t, "noreply@x.test", m.From)
	assert.True(t, mr.TTL(MockEmailKey("owner@x.test")) > 0)

	_, err = LatestMockEmail(ctx, rdb, "nobody@x.test")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompositeEmailSender(t *testing.T) {
	ctx := context.Background()

	empty := NewCompositeEmailSender()
	assert.Error(t, empty.Send(ctx, []string{"a@x.test"}, "s", nil))

	boom := errors.New("boom")
	path := filepath.Join(t.TempDir(), "emails.log")
	fileSender, err := NewFileEmailSender(path, zap.NewNop())
	require.NoError(t, err)

	cs := NewCompositeEmailSender(nil, failingSender{err: boom})
	cs.AddSender(fileSender)
	err = cs.Send(ctx, []string{"a@x.test"}, "s", []byte("x"))
	assert.ErrorIs(t, err, boom)

	// the failure does not stop later senders
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
