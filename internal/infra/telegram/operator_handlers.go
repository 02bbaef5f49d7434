package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"sendtime_notifier/internal/app"
	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/domain/notification"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const msgUnauthorized = "Error: you are not allowed to run this command."

// Operator is the admin-gated service behind the bot commands.
type Operator interface {
	IsAdmin(id int64) bool
	Report(ctx context.Context, performingAdminID int64, date time.Time) (*app.AnalyticsReport, error)
	Stats(ctx context.Context, performingAdminID int64, userID string, days int) (*notification.Stats, error)
	Cancel(ctx context.Context, performingAdminID int64, entryID int64) error
	SetOptimization(ctx context.Context, performingAdminID int64, date time.Time, enabled bool) error
}

type operatorHandlers struct {
	op     Operator
	logger *logrus.Entry
	now    func() time.Time
}

// RegisterOperatorHandlers registers the operator commands.
func RegisterOperatorHandlers(ctx context.Context, b *telebot.Bot, op Operator, baseLogger *logrus.Entry) {
	h := &operatorHandlers{op: op, logger: baseLogger, now: time.Now}
	commands := map[string]func(context.Context, int64, []string) string{
		"/report":   h.report,
		"/stats":    h.stats,
		"/cancel":   h.cancel,
		"/optimize": h.optimize,
	}
	for name, fn := range commands {
		b.Handle(name, func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   name,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")
			return c.Send(fn(ctx, c.Sender().ID, c.Args()))
		})
	}
}

// defaultDate is the most recent aggregated day.
func (h *operatorHandlers) defaultDate() time.Time {
	return analytics.DateOf(h.now()).AddDate(0, 0, -1)
}

func (h *operatorHandlers) parseDate(args []string, idx int) (time.Time, error) {
	if len(args) <= idx {
		return h.defaultDate(), nil
	}
	return time.Parse("2006-01-02", args[idx])
}

func (h *operatorHandlers) report(ctx context.Context, senderID int64, args []string) string {
	if !h.op.IsAdmin(senderID) {
		h.logger.WithField("sender_id", senderID).Warn("Unauthorized access attempt")
		return msgUnauthorized
	}
	date, err := h.parseDate(args, 0)
	if err != nil {
		return "Invalid date. Use: /report [YYYY-MM-DD]"
	}
	rep, err := h.op.Report(ctx, senderID, date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build analytics report")
		return fmt.Sprintf("Failed to build the report: %s", err.Error())
	}
	return formatReport(rep)
}

func (h *operatorHandlers) stats(ctx context.Context, senderID int64, args []string) string {
	if !h.op.IsAdmin(senderID) {
		h.logger.WithField("sender_id", senderID).Warn("Unauthorized access attempt")
		return msgUnauthorized
	}
	if len(args) < 1 || len(args) > 2 {
		return "Invalid command format. Use: /stats <userID> [days]"
	}
	days := app.DefaultStatsWindowDays
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return "Error: days must be a positive number."
		}
		days = n
	}
	st, err := h.op.Stats(ctx, senderID, args[0], days)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load notification stats")
		return fmt.Sprintf("Failed to load stats: %s", err.Error())
	}
	return formatStats(st)
}

func (h *operatorHandlers) cancel(ctx context.Context, senderID int64, args []string) string {
	if !h.op.IsAdmin(senderID) {
		h.logger.WithField("sender_id", senderID).Warn("Unauthorized access attempt")
		return msgUnauthorized
	}
	if len(args) != 1 {
		return "Invalid command format. Use: /cancel <entryID>"
	}
	entryID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Error: entry ID must be a number."
	}
	err = h.op.Cancel(ctx, senderID, entryID)
	switch {
	case err == nil:
		return fmt.Sprintf("Notification %d cancelled.", entryID)
	case errors.Is(err, notification.ErrEntryNotFound):
		return fmt.Sprintf("Notification %d not found.", entryID)
	case errors.Is(err, notification.ErrInvalidTransition):
		return fmt.Sprintf("Notification %d cannot be cancelled: %s", entryID, err.Error())
	default:
		h.logger.WithError(err).WithField("entry_id", entryID).Error("Failed to cancel notification")
		return fmt.Sprintf("Failed to cancel notification %d: %s", entryID, err.Error())
	}
}

func (h *operatorHandlers) optimize(ctx context.Context, senderID int64, args []string) string {
	if !h.op.IsAdmin(senderID) {
		h.logger.WithField("sender_id", senderID).Warn("Unauthorized access attempt")
		return msgUnauthorized
	}
	if len(args) < 1 || len(args) > 2 {
		return "Invalid command format. Use: /optimize <on|off> [YYYY-MM-DD]"
	}
	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return "Invalid argument. Use 'on' or 'off'."
	}
	date, err := h.parseDate(args, 1)
	if err != nil {
		return "Invalid date. Use: /optimize <on|off> [YYYY-MM-DD]"
	}
	err = h.op.SetOptimization(ctx, senderID, date, enabled)
	if errors.Is(err, analytics.ErrNoAnalytics) {
		return fmt.Sprintf("No analytics for %s yet. Run the aggregation first.", date.Format("2006-01-02"))
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to toggle optimization")
		return fmt.Sprintf("Failed to update optimization: %s", err.Error())
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return fmt.Sprintf("Personalized send times %s as of %s.", state, date.Format("2006-01-02"))
}

func formatReport(rep *app.AnalyticsReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Send-time report %s ---\n", rep.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Optimization: %s\n", onOff(rep.OptimizationEnabled))
	fmt.Fprintf(&b, "Variance: %.3f over %d qualifying hours\n", rep.Variance, rep.QualifyingHours)
	fmt.Fprintf(&b, "Recommendation: %s\n", rep.Recommendation.Message)
	if len(rep.Hourly) > 0 {
		b.WriteString("\nHour  Sent  Open%  Click%\n")
		for _, h := range rep.Hourly {
			fmt.Fprintf(&b, "%02d  %d  %.1f  %.1f\n", h.Hour, h.EmailsSent, h.OpenRate*100, h.ClickRate*100)
		}
	}
	if len(rep.Cohorts) > 0 {
		b.WriteString("\nCohort  Users  Click%\n")
		for _, c := range rep.Cohorts {
			fmt.Fprintf(&b, "%s  %d  %.1f\n", c.CohortName, c.Users, c.ClickRate*100)
		}
	}
	return b.String()
}

func formatStats(st *notification.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s, last %d days ---\n", st.UserID, st.WindowDays)
	fmt.Fprintf(&b, "Total: %d\n", st.Total)
	statuses := make([]string, 0, len(st.ByStatus))
	for s := range st.ByStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "%s: %d\n", s, st.ByStatus[notification.Status(s)])
	}
	for _, ch := range notification.Channels {
		if n := st.ByChannel[ch]; n > 0 {
			fmt.Fprintf(&b, "%s channel: %d\n", ch, n)
		}
	}
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
