// Package notify turns alert matches into persisted notifications and hands
// them to delivery channels. Persistence always happens before delivery, and
// a delivery failure never rolls persistence back: rows are exactly-once,
// delivery is at-least-once.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ezekaj/auto-scouter-sub000/pkg/matcher"
	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Deliverer is the abstract delivery channel (push, SSE, webhook). A batch
// of one is an immediate notification; larger batches are digests.
type Deliverer interface {
	Deliver(ctx context.Context, batch []storage.Notification) error
}

// Notifier persists matches and dispatches them.
type Notifier struct {
	db         *storage.DB
	deliverers []Deliverer
	log        Logger
}

// New creates a Notifier. A nil logger disables logging; zero deliverers
// means notifications are persisted but only picked up by later flushes.
func New(db *storage.DB, log Logger, deliverers ...Deliverer) *Notifier {
	if log == nil {
		log = nopLogger{}
	}
	return &Notifier{db: db, deliverers: deliverers, log: log}
}

// Result summarizes one Notify pass.
type Result struct {
	Created    []storage.Notification
	Suppressed int
	Duplicates int
}

// Notify persists one notification per previously-unseen (alert, listing)
// pair. Alerts over their daily cap get suppressed rows (matched but not
// delivered). Immediate-frequency notifications are dispatched right away;
// daily-frequency ones wait for FlushDigest.
func (n *Notifier) Notify(ctx context.Context, matches []matcher.Result) (*Result, error) {
	if len(matches) == 0 {
		return &Result{}, nil
	}

	alerts, err := n.db.ListAlerts(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("notify: load alerts: %w", err)
	}
	alertByID := make(map[int64]storage.Alert, len(alerts))
	for _, a := range alerts {
		alertByID[a.ID] = a
	}

	res := &Result{}
	var immediate []storage.Notification
	for _, m := range matches {
		alert, ok := alertByID[m.AlertID]
		if !ok {
			// Alert deleted mid-cycle; read-committed race, not an error.
			n.log.Debugf("notify: alert %d vanished before notification", m.AlertID)
			continue
		}

		notif, created, err := n.db.CreateNotification(ctx, m.AlertID, m.ListingID, Summarize(m.Listing), m.Score, alert.MaxNotificationsPerDay)
		if err != nil {
			return res, fmt.Errorf("notify: create notification: %w", err)
		}
		if !created {
			res.Duplicates++
			continue
		}
		res.Created = append(res.Created, *notif)
		if notif.Suppressed {
			res.Suppressed++
			n.log.Debugf("notify: alert %d over daily cap, recorded match for listing %d without delivery", m.AlertID, m.ListingID)
			continue
		}
		if alert.NotificationFrequency == storage.FrequencyImmediate {
			immediate = append(immediate, *notif)
		}
	}

	for _, notif := range immediate {
		n.dispatch(ctx, []storage.Notification{notif})
	}
	return res, nil
}

// FlushDigest delivers all pending daily-frequency notifications as one
// batch per alert. Returns how many notifications were delivered.
func (n *Notifier) FlushDigest(ctx context.Context) (int, error) {
	pending, err := n.db.PendingDeliveries(ctx, storage.FrequencyDaily)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	byAlert := make(map[int64][]storage.Notification)
	var order []int64
	for _, notif := range pending {
		if _, seen := byAlert[notif.AlertID]; !seen {
			order = append(order, notif.AlertID)
		}
		byAlert[notif.AlertID] = append(byAlert[notif.AlertID], notif)
	}

	delivered := 0
	for _, alertID := range order {
		batch := byAlert[alertID]
		if n.dispatch(ctx, batch) {
			delivered += len(batch)
		}
	}
	return delivered, nil
}

// RetryPending re-dispatches immediate notifications whose earlier delivery
// failed (persisted but delivered_at still unset).
func (n *Notifier) RetryPending(ctx context.Context) (int, error) {
	pending, err := n.db.PendingDeliveries(ctx, storage.FrequencyImmediate)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, notif := range pending {
		if n.dispatch(ctx, []storage.Notification{notif}) {
			delivered++
		}
	}
	return delivered, nil
}

// dispatch hands a batch to every deliverer. Delivery succeeds if at least
// one channel accepts it; duplicates on retry are acceptable, missing
// notifications are not.
func (n *Notifier) dispatch(ctx context.Context, batch []storage.Notification) bool {
	if len(n.deliverers) == 0 {
		return false
	}
	ok := false
	for _, d := range n.deliverers {
		if err := d.Deliver(ctx, batch); err != nil {
			n.log.Warnf("notify: delivery failed: %v", err)
			continue
		}
		ok = true
	}
	if !ok {
		return false
	}
	now := time.Now().UTC()
	for _, notif := range batch {
		if err := n.db.MarkDelivered(ctx, notif.ID, now); err != nil {
			n.log.Warnf("notify: could not mark notification %d delivered: %v", notif.ID, err)
		}
	}
	return true
}

// Summarize renders the denormalized listing snapshot stored on the
// notification, so it survives later listing changes.
func Summarize(l storage.Listing) string {
	summary := fmt.Sprintf("%s %s", l.Make, l.Model)
	if l.Variant != "" {
		summary += " " + l.Variant
	}
	if l.Year > 0 {
		summary += fmt.Sprintf(" (%d)", l.Year)
	}
	if l.Price > 0 {
		cur := l.Currency
		if cur == "" {
			cur = "EUR"
		}
		summary += fmt.Sprintf(" - %d %s", l.Price, cur)
	}
	if l.Mileage > 0 {
		summary += fmt.Sprintf(", %d km", l.Mileage)
	}
	if l.City != "" {
		summary += ", " + l.City
	}
	summary += " | " + l.URL
	return summary
}
