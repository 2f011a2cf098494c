package bot

import (
	"context"
	"fmt"
	"strconv"

	"finbot/internal/core"
	applog "finbot/internal/log"
	"finbot/internal/report"
)

func commandTable() map[string]handler {
	recordAs := func(kind core.Kind) handler {
		return func(d *Dispatcher, ctx context.Context, user string, args []string) string {
			return d.startRecord(ctx, user, kind, args)
		}
	}
	pendingOf := func(kind core.Kind) handler {
		return func(d *Dispatcher, ctx context.Context, user string, _ []string) string {
			return d.pending(ctx, user, kind)
		}
	}
	settleOf := func(kind core.Kind) handler {
		return func(d *Dispatcher, ctx context.Context, user string, args []string) string {
			return d.settle(ctx, user, kind, args)
		}
	}

	cmds := map[string]handler{
		"start":     (*Dispatcher).start,
		"help":      (*Dispatcher).help,
		"balance":   (*Dispatcher).balance,
		"recent":    (*Dispatcher).recent,
		"today":     (*Dispatcher).today,
		"yesterday": (*Dispatcher).yesterday,
		"total":     (*Dispatcher).total,
		"report":    (*Dispatcher).sendReports,
		"borrows":   pendingOf(core.Borrow),
		"lends":     pendingOf(core.Lend),
		"returned":  settleOf(core.Borrow),
		"received":  settleOf(core.Lend),
	}
	for _, name := range []string{"income", "salary", "credit"} {
		cmds[name] = recordAs(core.Income)
	}
	for _, name := range []string{"expense", "spend", "debit"} {
		cmds[name] = recordAs(core.Expense)
	}
	for _, name := range []string{"save", "saving"} {
		cmds[name] = recordAs(core.Saving)
	}
	cmds["borrow"] = recordAs(core.Borrow)
	cmds["lend"] = recordAs(core.Lend)
	return cmds
}

func (d *Dispatcher) start(ctx context.Context, user string, args []string) string {
	if err := d.svc.Store().Touch(ctx, user); err != nil {
		return d.fail(ctx, user, "start", err)
	}
	d.logger.InfoContext(ctx, "User registered", applog.FieldUserID, user)
	return d.help(ctx, user, args)
}

func (d *Dispatcher) help(_ context.Context, _ string, _ []string) string {
	days := int(d.recentWindow.Hours() / 24)
	return "Finance Tracker Bot\n" +
		"/income <amount> [note] - record income (also /salary, /credit)\n" +
		"/expense <amount> [note] - record an expense (also /spend, /debit)\n" +
		"/save <amount> [note] - record savings\n" +
		"/borrow <amount> <from> [note] - money you borrowed\n" +
		"/lend <amount> <to> [note] - money you lent\n" +
		"/balance - income minus expenses\n" +
		fmt.Sprintf("/recent - transactions of the last %d days\n", days) +
		"/borrows, /lends - pending loans\n" +
		"/returned <n>, /received <n> - settle a pending loan\n" +
		"/today, /yesterday - daily summary\n" +
		"/total - totals per kind\n" +
		"/report - send the daily report now\n" +
		"/cancel - abort the current command"
}

func (d *Dispatcher) balance(ctx context.Context, user string, _ []string) string {
	b, err := d.svc.Store().Balance(ctx, user)
	if err != nil {
		return d.fail(ctx, user, "balance", err)
	}
	return report.Balance(b)
}

func (d *Dispatcher) recent(ctx context.Context, user string, _ []string) string {
	txs, err := d.svc.Store().Windowed(ctx, user, d.recentWindow)
	if err != nil {
		return d.fail(ctx, user, "recent", err)
	}
	return report.Transactions(txs, d.recentWindow)
}

func (d *Dispatcher) today(ctx context.Context, user string, _ []string) string {
	return d.summary(ctx, user, "Today", 0)
}

func (d *Dispatcher) yesterday(ctx context.Context, user string, _ []string) string {
	return d.summary(ctx, user, "Yesterday", -1)
}

func (d *Dispatcher) summary(ctx context.Context, user, title string, offset int) string {
	store := d.svc.Store()
	day := store.Now().AddDate(0, 0, offset)
	s, err := store.DailySummary(ctx, user, day)
	if err != nil {
		return d.fail(ctx, user, "summary", err)
	}
	return report.Summary(title, s)
}

func (d *Dispatcher) total(ctx context.Context, user string, _ []string) string {
	t, err := d.svc.Store().Totals(ctx, user)
	if err != nil {
		return d.fail(ctx, user, "total", err)
	}
	return report.Totals(t)
}

func (d *Dispatcher) sendReports(ctx context.Context, user string, _ []string) string {
	if d.reports == nil {
		return "Daily reports are not configured."
	}
	n, err := d.reports.Run(ctx, d.now())
	if err != nil {
		return d.fail(ctx, user, "report", err)
	}
	return fmt.Sprintf("Daily report sent to %d users.", n)
}

func shownKey(user string, kind core.Kind) string {
	return user + "|" + string(kind)
}

// showPending renders the pending list and remembers its order for settling.
func (d *Dispatcher) showPending(ctx context.Context, user string, kind core.Kind) (string, int, error) {
	txs, err := d.svc.Store().Pending(ctx, user, kind)
	if err != nil {
		return "", 0, err
	}
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	d.shown.Set(shownKey(user, kind), ids)
	return report.Pending(kind, txs), len(txs), nil
}

func (d *Dispatcher) pending(ctx context.Context, user string, kind core.Kind) string {
	text, _, err := d.showPending(ctx, user, kind)
	if err != nil {
		return d.fail(ctx, user, "pending", err)
	}
	return text
}

func (d *Dispatcher) settle(ctx context.Context, user string, kind core.Kind, args []string) string {
	cmd := "/returned"
	if kind == core.Lend {
		cmd = "/received"
	}
	if len(args) == 0 {
		text, n, err := d.showPending(ctx, user, kind)
		if err != nil {
			return d.fail(ctx, user, "pending", err)
		}
		if n == 0 {
			return text
		}
		return text + "\nSend " + cmd + " <number> to settle one."
	}

	position, err := strconv.Atoi(args[0])
	if err != nil || position < 1 {
		return "Usage: " + cmd + " <number>"
	}
	shown, ok := d.shown.Get(shownKey(user, kind))
	if !ok {
		text, n, err := d.showPending(ctx, user, kind)
		if err != nil {
			return d.fail(ctx, user, "pending", err)
		}
		if n == 0 {
			return text
		}
		return text + "\nCheck the list and send " + cmd + " <number> again."
	}
	if _, err := d.svc.SettleShown(ctx, user, shown, position); err != nil {
		return d.fail(ctx, user, "settle", err)
	}
	return report.Settled(kind, position)
}
