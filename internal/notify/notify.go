package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neexbeast/campwatch/internal/availability"
)

// Subject is the subject line of every availability notification.
const Subject = "Campsite available"

// Transport delivers one plain-text message.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Observer counts notification outcomes ("sent", "failed", "skipped").
type Observer interface {
	IncNotifications(result string)
}

type nopObserver struct{}

func (nopObserver) IncNotifications(string) {}

// Notifier sends notifications without ever surfacing delivery failures.
type Notifier struct {
	transport Transport
	log       *slog.Logger
	obs       Observer
}

// NewNotifier constructs a Notifier. obs may be nil.
func NewNotifier(t Transport, log *slog.Logger, obs Observer) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Notifier{transport: t, log: log, obs: obs}
}

// Notify delivers body to address. An empty address is a no-op. Transport
// errors and panics are logged and counted, never returned.
func (n *Notifier) Notify(ctx context.Context, address, subject, body string) {
	address = strings.TrimSpace(address)
	if address == "" {
		n.log.Info("no notification address, skipping", "subject", subject)
		n.obs.IncNotifications("skipped")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			n.log.Error("notification transport panicked", "to", address, "recover", r)
			n.obs.IncNotifications("failed")
		}
	}()

	if err := n.transport.Send(ctx, address, subject, body); err != nil {
		n.log.Error("sending notification failed", "to", address, "err", err)
		n.obs.IncNotifications("failed")
		return
	}

	n.log.Info("notification sent", "to", address, "subject", subject)
	n.obs.IncNotifications("sent")
}

// BuildBody enumerates matches and appends the campground's difficulty score.
func BuildBody(campgroundID string, matches []availability.Record, score float64) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Matching sites found at campground %s:\n\n", campgroundID)
	for _, m := range matches {
		name := m.SiteID
		if m.SiteName != "" {
			name = fmt.Sprintf("%s (%s)", m.SiteName, m.SiteID)
		}
		fmt.Fprintf(&sb, "  - site %s on %s", name, dateOnly(m.Date))
		if m.Loop != "" {
			fmt.Fprintf(&sb, ", loop %s", m.Loop)
		}
		if m.SiteType != "" {
			fmt.Fprintf(&sb, ", %s", m.SiteType)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nBooking difficulty: %.2f\n", score)
	fmt.Fprintf(&sb, "Book at https://www.recreation.gov/camping/campgrounds/%s\n", campgroundID)

	return sb.String()
}

func dateOnly(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

// LogTransport writes messages to the log instead of delivering them.
type LogTransport struct {
	Log *slog.Logger
}

func (t LogTransport) Send(_ context.Context, to, subject, body string) error {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "to", to, "subject", subject, "body", body)
	return nil
}
