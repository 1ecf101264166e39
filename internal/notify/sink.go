package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/core"
)

// Class selects the destination for a message. Alerts and status reports go
// to different chats so alert channels stay high-signal.
type Class string

const (
	ClassAvailableAlert Class = "available_alert"
	ClassStatusReport   Class = "status_report"
)

// Sink delivers a rendered message to a destination class. Delivery is
// at-most-once from the engine's point of view: a failed send is retried a
// bounded number of times here and then dropped, never re-armed.
type Sink interface {
	Send(ctx context.Context, class Class, domain, message string) error
}

// LogSink is the fallback when no Telegram token is configured. It keeps
// the engine's notification semantics observable in the logs.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Send(_ context.Context, class Class, domain, message string) error {
	s.Logger.Info("notification (log sink)",
		zap.String("class", string(class)),
		zap.String("domain", domain),
		zap.String("message", message),
	)
	return nil
}

// RenderAvailableAlert formats the backorder alert sent when a domain
// becomes available for registration.
func RenderAvailableAlert(domain string, firstSeen time.Time) string {
	var b strings.Builder
	b.WriteString("🚨 <b>DOMAIN AVAILABLE!</b> 🚨\n\n")
	fmt.Fprintf(&b, "Domain: <code>%s</code>\n", domain)
	b.WriteString("Status: ✅ Available for registration\n")
	fmt.Fprintf(&b, "Time: %s\n\n", firstSeen.Format("2006-01-02 15:04:05"))
	b.WriteString("Act fast! Register this domain now!")
	return b.String()
}

// RenderStatusReport formats the periodic aggregate report.
func RenderStatusReport(cycle uint64, stats core.Stats, snapshot *core.TrackerState, reportEvery int) string {
	var b strings.Builder
	b.WriteString("📊 <b>Domain Monitoring Status Report</b>\n\n")
	fmt.Fprintf(&b, "🔄 Cycle: #%d\n", cycle)
	fmt.Fprintf(&b, "⏰ Time: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "📋 Total domains: %d\n", stats.Total)
	fmt.Fprintf(&b, "✅ Available: %d\n", stats.Unregistered)
	fmt.Fprintf(&b, "⏳ Registered: %d\n", stats.Registered)
	fmt.Fprintf(&b, "❓ Unknown: %d\n", stats.Unknown)
	fmt.Fprintf(&b, "🔍 Total checks: %d\n\n", stats.TotalChecks)

	available, taken := partition(snapshot)

	if len(available) > 0 {
		fmt.Fprintf(&b, "✅ <b>Available domains (%d):</b>\n", len(available))
		for _, name := range available {
			rec := snapshot.Domains[name]
			fmt.Fprintf(&b, "   • %s (since: %s)\n", name, formatTime(rec.FirstUnregistered))
		}
		b.WriteString("\n")
	}

	if len(taken) > 0 {
		fmt.Fprintf(&b, "⏳ <b>Still registered (%d):</b>\n", len(taken))
		limit := len(taken)
		if limit > 10 {
			limit = 10
		}
		for _, name := range taken[:limit] {
			rec := snapshot.Domains[name]
			fmt.Fprintf(&b, "   • %s (checked: %s)\n", name, formatTime(rec.LastChecked))
		}
		if len(taken) > 10 {
			fmt.Fprintf(&b, "   ... and %d more\n", len(taken)-10)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "🤖 Next report in %d cycles", reportEvery)
	return b.String()
}

func partition(snapshot *core.TrackerState) (available, taken []string) {
	for name, rec := range snapshot.Domains {
		if rec.Status == core.StatusUnregistered {
			available = append(available, name)
		} else {
			taken = append(taken, name)
		}
	}
	sort.Strings(available)
	sort.Strings(taken)
	return available, taken
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}
