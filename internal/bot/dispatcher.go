// Package bot turns chat messages into ledger operations and text replies.
// It knows nothing about a specific chat API; transports hand it a Message
// and deliver the Reply.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"finbot/internal/cache"
	"finbot/internal/core"
	applog "finbot/internal/log"
	"finbot/internal/services"
)

// Message is one inbound chat message.
type Message struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Reply is the text sent back to the user.
type Reply struct {
	Text string `json:"reply"`
}

// ReportRunner runs the daily report pass on demand.
type ReportRunner interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

const (
	DefaultRecentWindow        = 30 * 24 * time.Hour
	DefaultConversationTimeout = 10 * time.Minute
	maxConversations           = 10000
)

// handler has the shape of a Dispatcher method expression.
type handler func(d *Dispatcher, ctx context.Context, user string, args []string) string

// Dispatcher routes commands to the ledger service. It is safe for
// concurrent use; per-user ordering is enforced by the ledger store.
type Dispatcher struct {
	svc     *services.LedgerService
	reports ReportRunner
	logger  *applog.Logger

	recentWindow time.Duration
	convTimeout  time.Duration
	now          func() time.Time

	conversations *cache.LRUCache[conversation]
	// Pending lists as last shown, by shownKey. Settling by number
	// resolves against these, never against a freshly computed list.
	shown    *cache.LRUCache[[]string]
	commands map[string]handler
}

type Option func(*Dispatcher)

func WithReportRunner(r ReportRunner) Option {
	return func(d *Dispatcher) { d.reports = r }
}

// WithRecentWindow sets how far back /recent looks.
func WithRecentWindow(window time.Duration) Option {
	return func(d *Dispatcher) {
		if window > 0 {
			d.recentWindow = window
		}
	}
}

// WithConversationTimeout sets how long an unanswered prompt stays open.
func WithConversationTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.convTimeout = timeout
		}
	}
}

// WithClock overrides time.Now for conversation expiry and report triggers.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithLogger(logger *applog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDispatcher(svc *services.LedgerService, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		svc:          svc,
		logger:       applog.New(applog.Config{Component: applog.ComponentBot, Handler: slog.Default().Handler()}),
		recentWindow: DefaultRecentWindow,
		convTimeout:  DefaultConversationTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.conversations = cache.NewLRUCache[conversation](maxConversations, d.convTimeout, cache.WithClock(d.now))
	d.shown = cache.NewLRUCache[[]string](maxConversations, d.convTimeout, cache.WithClock(d.now))
	d.commands = commandTable()
	return d
}

// CleanExpired drops timed-out conversations and shown lists. It lets a
// cache.Manager sweep the dispatcher.
func (d *Dispatcher) CleanExpired() int {
	return d.conversations.CleanExpired() + d.shown.CleanExpired()
}

// Handle processes one message and returns the reply to send.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) Reply {
	user := strings.TrimSpace(msg.UserID)
	text := strings.TrimSpace(msg.Text)
	if user == "" {
		return Reply{Text: errorText(core.ErrEmptyUser)}
	}

	if !strings.HasPrefix(text, "/") {
		if conv, ok := d.conversations.Get(user); ok {
			return Reply{Text: d.continueConversation(ctx, user, conv, text)}
		}
		return Reply{Text: "Send /help for the list of commands."}
	}

	name, args := parseCommand(text)
	switch name {
	case "cancel":
		return Reply{Text: d.cancel(user)}
	case "skip":
		return Reply{Text: d.skip(ctx, user)}
	}

	// Any other command abandons an open conversation.
	d.conversations.Delete(user)

	h, ok := d.commands[name]
	if !ok {
		return Reply{Text: "Unknown command /" + name + ". Send /help for the list of commands."}
	}

	d.logger.DebugContext(ctx, "Handling command",
		applog.FieldUserID, user,
		applog.FieldCommand, name)
	return Reply{Text: h(d, ctx, user, args)}
}

// parseCommand splits "/Cmd@bot a b" into ("cmd", ["a", "b"]).
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

// fail maps an operation error to user-facing text, logging the ones the
// user cannot fix.
func (d *Dispatcher) fail(ctx context.Context, user, op string, err error) string {
	if errors.Is(err, core.ErrStorageUnavailable) || !isUserError(err) {
		d.logger.ErrorContext(ctx, "Command failed",
			applog.NewFields().WithUser(user).WithOperation(op).WithError(err).ToSlice()...)
	}
	return errorText(err)
}

func isUserError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount, core.ErrInvalidKind, core.ErrMissingCounterparty,
		core.ErrEmptyUser, core.ErrNoteTooLong, core.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func errorText(err error) string {
	switch {
	case errors.Is(err, core.ErrStorageUnavailable):
		return "Something went wrong while saving your data. Please try again later."
	case errors.Is(err, core.ErrInvalidAmount):
		return "Invalid amount. Please send a positive number such as 250 or 12.50."
	case errors.Is(err, core.ErrMissingCounterparty):
		return "Please tell me who the other person is."
	case errors.Is(err, core.ErrNoteTooLong):
		return "That note is too long (max 200 characters)."
	case errors.Is(err, core.ErrNotFound):
		return "Not found."
	case errors.Is(err, core.ErrEmptyUser):
		return "Missing user id."
	}
	return "Something went wrong. Please try again later."
}
