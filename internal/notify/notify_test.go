package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	err    error
	sent   chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(chan struct{}, 16)}
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
	r.sent <- struct{}{}
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func (r *recordingSender) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("sender was not invoked")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := newRecordingSender()
	n := NewNotifier([]Sender{s}, []string{"position_opened"}, 0, discardLogger())

	n.Notify(context.Background(), "heartbeat", "Heartbeat", "alive")
	n.Notify(context.Background(), "position_opened", "Opened", "m1")

	s.wait(t)
	assert.Equal(t, 1, s.count())
	assert.Equal(t, "Opened", s.titles[0])
}

func TestNotifierEmptyEventListAllowsAll(t *testing.T) {
	s := newRecordingSender()
	n := NewNotifier([]Sender{s}, nil, 0, discardLogger())

	n.Notify(context.Background(), "anything", "Title", "msg")
	s.wait(t)
	assert.Equal(t, 1, s.count())
}

func TestNotifierDeduplicatesWithinWindow(t *testing.T) {
	s := newRecordingSender()
	n := NewNotifier([]Sender{s}, nil, time.Minute, discardLogger())

	n.Notify(context.Background(), "halted", "Halted", "trade cap")
	s.wait(t)
	n.Notify(context.Background(), "halted", "Halted", "trade cap") // suppressed
	n.Notify(context.Background(), "halted", "Halted", "different reason")
	s.wait(t)

	assert.Equal(t, 2, s.count())
}

func TestNotifierNoSendersDoesNotPanic(t *testing.T) {
	n := NewNotifier(nil, nil, 0, discardLogger())
	require.NotPanics(t, func() {
		n.Notify(context.Background(), "heartbeat", "Heartbeat", "alive")
	})
}

func TestNotifierSenderErrorIsContained(t *testing.T) {
	s := newRecordingSender()
	s.err = errors.New("chat api down")
	n := NewNotifier([]Sender{s}, nil, 0, discardLogger())

	require.NotPanics(t, func() {
		n.Notify(context.Background(), "error", "Oops", "details")
	})
	s.wait(t)
}

func TestThrottleWindow(t *testing.T) {
	tr := newThrottle(time.Minute)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, tr.allow("k", base))
	assert.False(t, tr.allow("k", base.Add(30*time.Second)))
	assert.True(t, tr.allow("k", base.Add(61*time.Second)))
	assert.True(t, tr.allow("other", base))
}

func TestThrottleZeroWindowAllowsAll(t *testing.T) {
	tr := newThrottle(0)
	base := time.Now()
	assert.True(t, tr.allow("k", base))
	assert.True(t, tr.allow("k", base))
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok123", "chat42")
	s.baseURL = srv.URL

	require.NoError(t, s.Send(context.Background(), "Opened", "m1 Yes @ 0.420"))
	assert.Equal(t, "chat42", got["chat_id"])
	assert.Contains(t, got["text"], "*Opened*")
	assert.Contains(t, got["text"], "m1 Yes @ 0.420")
}

func TestTelegramSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "chat")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Closed", "pnl 0.1200"))
	assert.Contains(t, got["content"], "**Closed**")
	assert.Contains(t, got["content"], "pnl 0.1200")
}
