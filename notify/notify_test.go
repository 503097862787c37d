package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardperks/benefit-engine/benefit"
)

var reminder = Message{Title: "信用卡福利即將到期", Body: "您的 CUBE 卡 - 3% 回饋 還有 3 天到期"}

func TestTelegram_Send(t *testing.T) {
	// GIVEN: a fake Bot API
	var got telegramSendMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", srv.URL)
	r := Recipient{UserID: "u1", TelegramID: "987"}

	// WHEN: sending
	require.True(t, tg.Enabled(r))
	require.NoError(t, tg.Send(context.Background(), r, reminder))

	// THEN: the chat gets a Markdown message with the title in bold
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "987", got.ChatID)
	assert.Equal(t, "Markdown", got.ParseMode)
	assert.True(t, strings.HasPrefix(got.Text, "🔔 *信用卡福利即將到期*\n\n"))
}

func TestTelegram_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := NewTelegram("TOKEN", srv.URL).Send(context.Background(), Recipient{TelegramID: "1"}, reminder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.NotContains(t, err.Error(), "TOKEN")
}

func TestTelegram_DisabledWithoutToken(t *testing.T) {
	assert.False(t, NewTelegram("", "").Enabled(Recipient{TelegramID: "1"}))
	assert.False(t, NewTelegram("TOKEN", "").Enabled(Recipient{}))
}

func TestLine_Send(t *testing.T) {
	var got linePushRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/message/push", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	l := NewLine("CHANNEL", srv.URL)
	require.NoError(t, l.Send(context.Background(), Recipient{LineUserID: "Uabc"}, reminder))

	assert.Equal(t, "Bearer CHANNEL", auth)
	assert.Equal(t, "Uabc", got.To)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "text", got.Messages[0].Type)
	assert.Contains(t, got.Messages[0].Text, reminder.Body)
}

func TestLine_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Authentication failed"}`))
	}))
	defer srv.Close()

	err := NewLine("bad", srv.URL).Send(context.Background(), Recipient{LineUserID: "U1"}, reminder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEmail_Send(t *testing.T) {
	// GIVEN: an email channel with a captured SMTP send
	e := NewEmail(SMTPConfig{Host: "smtp.example.com", User: "bot@example.com", Password: "pw"})
	var addr string
	var to []string
	var msg string
	e.sendMail = func(a string, _ smtp.Auth, from string, rcpt []string, m []byte) error {
		addr, to, msg = a, rcpt, string(m)
		assert.Equal(t, "bot@example.com", from)
		return nil
	}

	// WHEN: sending to a user whose name needs escaping
	r := Recipient{Email: "mei@example.com", Name: "<Mei>"}
	require.NoError(t, e.Send(context.Background(), r, reminder))

	// THEN: the message is an encoded-subject HTML mail
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Equal(t, []string{"mei@example.com"}, to)
	assert.Contains(t, msg, "Subject: =?UTF-8?b?")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, msg, reminder.Body)
	assert.Contains(t, msg, "&lt;Mei&gt;")
}

func TestEmail_Enabled(t *testing.T) {
	assert.False(t, NewEmail(SMTPConfig{}).Enabled(Recipient{Email: "a@b.c"}))
	assert.True(t, NewEmail(SMTPConfig{Host: "h", From: "f@b.c"}).Enabled(Recipient{Email: "a@b.c"}))
}

// fakeChannel records sends and fails when err is set.
type fakeChannel struct {
	name string
	err  error

	mu    sync.Mutex
	sends int
}

func (f *fakeChannel) Name() string             { return f.name }
func (f *fakeChannel) Enabled(r Recipient) bool { return r.UserID != "" }
func (f *fakeChannel) Send(ctx context.Context, r Recipient, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return f.err
}

func TestDispatch_PartialFailureSucceeds(t *testing.T) {
	// GIVEN: one working and one failing channel
	ok := &fakeChannel{name: "ok"}
	bad := &fakeChannel{name: "bad", err: errors.New("boom")}
	d := NewDispatcher(nil, ok, bad)

	// WHEN: dispatching
	res, err := d.Dispatch(context.Background(), Recipient{UserID: "u1"}, reminder)

	// THEN: it succeeds and reports the failing channel
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, []string{"ok"}, res.Delivered)
	assert.Equal(t, "boom", res.Errors["bad"])
	assert.Equal(t, 1, ok.sends)
	assert.Equal(t, 1, bad.sends)
}

func TestDispatch_AllFail(t *testing.T) {
	d := NewDispatcher(nil,
		&fakeChannel{name: "a", err: errors.New("down")},
		&fakeChannel{name: "b", err: errors.New("down")},
	)

	res, err := d.Dispatch(context.Background(), Recipient{UserID: "u1"}, reminder)
	require.Error(t, err)
	assert.False(t, res.Success())
	assert.Len(t, res.Errors, 2)
}

func TestDispatch_NoChannel(t *testing.T) {
	d := NewDispatcher(nil, &fakeChannel{name: "a"}, NewTelegram("", ""))
	assert.ElementsMatch(t, []string{"a", "telegram"}, d.Channels())

	_, err := d.Dispatch(context.Background(), Recipient{}, reminder)
	assert.ErrorIs(t, err, benefit.ErrNoChannel)
}
