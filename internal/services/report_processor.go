package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/core"
	"finbot/internal/ledger"
	applog "finbot/internal/log"
	"finbot/internal/report"
)

// Notifier delivers a rendered report to one user.
type Notifier interface {
	Notify(ctx context.Context, user string, day time.Time, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, user string, day time.Time, text string) error

func (f NotifierFunc) Notify(ctx context.Context, user string, day time.Time, text string) error {
	return f(ctx, user, day, text)
}

// AMQPNotifier queues reports for the chat transport to deliver.
type AMQPNotifier struct {
	client *amqp.Client
}

func NewAMQPNotifier(client *amqp.Client) *AMQPNotifier {
	return &AMQPNotifier{client: client}
}

func (n *AMQPNotifier) Notify(ctx context.Context, user string, day time.Time, text string) error {
	return n.client.PublishDailyReport(ctx, amqp.NewDailyReportMessage(user, day, text))
}

// LogNotifier writes reports to the log. Used when no queue is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, user string, day time.Time, text string) error {
	slog.InfoContext(ctx, "Daily report",
		"user_id", user,
		"date", day.Format("2006-01-02"),
		"text", text)
	return nil
}

var (
	_ Notifier = (*AMQPNotifier)(nil)
	_ Notifier = LogNotifier{}
	_ Notifier = NotifierFunc(nil)
)

// ReportProcessor sends every known user a summary of the previous day.
type ReportProcessor struct {
	store    *ledger.Store
	notifier Notifier
}

func NewReportProcessor(store *ledger.Store, notifier Notifier) *ReportProcessor {
	return &ReportProcessor{
		store:    store,
		notifier: notifier,
	}
}

// Run reports the calendar day before now to every user. A failure for one
// user is logged and the pass continues. It returns the number of reports sent.
func (p *ReportProcessor) Run(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.notifier == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	users, err := p.store.Users(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	day := now.In(p.store.Location()).AddDate(0, 0, -1)
	slog.InfoContext(ctx, "Sending daily reports",
		"users", len(users),
		"report_date", day.Format("2006-01-02"))

	failures := applog.NewStructuredLogger(applog.FromContext(ctx))
	sent := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		text, summary, err := p.render(ctx, user, day)
		if err != nil {
			failures.LogError(ctx, "Failed to build daily report", err, applog.ComponentReport, applog.OpRead,
				applog.NewFields().WithUser(user))
			continue
		}

		if err := p.notifier.Notify(ctx, user, summary.Date, text); err != nil {
			failures.LogError(ctx, "Failed to deliver daily report", err, applog.ComponentReport, applog.OpNotify,
				applog.NewFields().WithUser(user))
			continue
		}
		sent++
	}

	slog.InfoContext(ctx, "Daily report pass complete",
		"sent", sent,
		"total_users", len(users))

	return sent, nil
}

func (p *ReportProcessor) render(ctx context.Context, user string, day time.Time) (string, core.DailySummary, error) {
	summary, err := p.store.DailySummary(ctx, user, day)
	if err != nil {
		return "", summary, fmt.Errorf("daily summary: %w", err)
	}
	balance, err := p.store.Balance(ctx, user)
	if err != nil {
		return "", summary, fmt.Errorf("balance: %w", err)
	}
	return report.Daily(summary, balance), summary, nil
}
