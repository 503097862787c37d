/*
Package notify delivers benefit reminders to users.

PURPOSE:
  A user may be reachable on several channels (Telegram chat, LINE, email).
  The Dispatcher sends one message to every channel the user has configured,
  concurrently, and reports which succeeded.

KEY CONCEPTS:
  - Channel:    one delivery provider (Telegram, LINE, email)
  - Recipient:  a user's addresses on each channel
  - Dispatcher: fans a Message out to every enabled channel of a Recipient

DELIVERY RULE:
  A dispatch succeeds when at least one channel delivers. Per-channel
  failures are collected in Result.Errors rather than aborting the others.

SEE ALSO:
  - telegram.go, line.go, email.go: channel implementations
  - reminder/: builds the messages and calls Dispatch
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cardperks/benefit-engine/benefit"
)

// Message is the content of a notification.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Text renders the message as plain text: title, blank line, body.
func (m Message) Text() string {
	return m.Title + "\n\n" + m.Body
}

// Recipient holds a user's address on each channel. Empty means not
// reachable on that channel.
type Recipient struct {
	UserID     string
	Name       string
	Email      string
	TelegramID string
	LineUserID string
}

// Channel delivers messages through one provider.
type Channel interface {
	// Name identifies the channel in results and logs.
	Name() string
	// Enabled reports whether the channel is configured and r has an
	// address on it.
	Enabled(r Recipient) bool
	Send(ctx context.Context, r Recipient, m Message) error
}

// Sender is what the reminder jobs depend on.
type Sender interface {
	Dispatch(ctx context.Context, r Recipient, m Message) (Result, error)
}

// Result reports the outcome of one dispatch.
type Result struct {
	Delivered []string          // channel names that succeeded
	Errors    map[string]string // channel name -> error text
}

// Success reports whether any channel delivered.
func (r Result) Success() bool {
	return len(r.Delivered) > 0
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher fans messages out to channels.
type Dispatcher struct {
	channels []Channel
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over the given channels. Nil channels
// are skipped.
func NewDispatcher(logger *zap.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{logger: logger}
	for _, c := range channels {
		if c != nil {
			d.channels = append(d.channels, c)
		}
	}
	return d
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, c := range d.channels {
		names[i] = c.Name()
	}
	return names
}

// Dispatch sends m on every channel enabled for r. It returns
// benefit.ErrNoChannel when none is enabled, and an error wrapping the
// channel failures when all enabled channels fail.
func (d *Dispatcher) Dispatch(ctx context.Context, r Recipient, m Message) (Result, error) {
	result := Result{Errors: map[string]string{}}

	var enabled []Channel
	for _, c := range d.channels {
		if c.Enabled(r) {
			enabled = append(enabled, c)
		}
	}
	if len(enabled) == 0 {
		return result, fmt.Errorf("user %s: %w", r.UserID, benefit.ErrNoChannel)
	}

	var mu sync.Mutex
	var errs []error
	eg, egCtx := errgroup.WithContext(ctx)
	for _, c := range enabled {
		eg.Go(func() error {
			err := c.Send(egCtx, r, m)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[c.Name()] = err.Error()
				errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
				d.logger.Warn("notification channel failed",
					zap.String("channel", c.Name()),
					zap.String("user_id", r.UserID),
					zap.Error(err))
				return nil
			}
			result.Delivered = append(result.Delivered, c.Name())
			return nil
		})
	}
	_ = eg.Wait()

	if !result.Success() {
		return result, fmt.Errorf("user %s: all channels failed: %w", r.UserID, errors.Join(errs...))
	}
	d.logger.Debug("notification delivered",
		zap.String("user_id", r.UserID),
		zap.Strings("channels", result.Delivered))
	return result, nil
}

// unwrapURLError drops the request URL from transport errors; provider
// URLs may embed credentials.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
