package poller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/roach88/area/internal/tasks"
)

// DefaultRenewWithin renews a Gmail watch this long before it expires.
// Gmail watches last seven days.
const DefaultRenewWithin = 24 * time.Hour

// gmailLabels maps triggers onto the mailbox label they observe.
var gmailLabels = map[string]string{
	"email_received":             "INBOX",
	"email_received_from_person": "INBOX",
	"email_sent":                 "SENT",
	"email_sent_to_person":       "SENT",
}

// WatchClient is the part of the Gmail API the watch ensurer needs.
type WatchClient interface {
	Profile(ctx context.Context, accessToken string) (*gmail.Profile, error)
	Watch(ctx context.Context, accessToken string, req *gmail.WatchRequest) (*gmail.WatchResponse, error)
}

// mailboxWatch is the last watch installed on one mailbox.
type mailboxWatch struct {
	topic     string
	labels    []string
	expiresAt time.Time
}

// GmailWatch makes sure every Google mail task's mailbox publishes changes
// to the task's Pub/Sub topic.
//
// Gmail keeps one watch per mailbox, so the labels of all tasks sharing a
// mailbox are accumulated into the same watch.
type GmailWatch struct {
	client      WatchClient
	renewWithin time.Duration
	now         func() time.Time

	mu      sync.Mutex
	watches map[string]mailboxWatch // mailbox address -> installed watch
}

// NewGmailWatch creates the google Worker.
func NewGmailWatch(client WatchClient) *GmailWatch {
	return &GmailWatch{
		client:      client,
		renewWithin: DefaultRenewWithin,
		now:         time.Now,
		watches:     make(map[string]mailboxWatch),
	}
}

// Service implements Worker.
func (g *GmailWatch) Service() string { return "google" }

// Handle installs or renews the mailbox watch. Task arguments start with
// the Pub/Sub project id and topic name.
func (g *GmailWatch) Handle(ctx context.Context, task tasks.ServiceTask) error {
	label, ok := gmailLabels[task.Trigger]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTrigger, task.Trigger)
	}
	if len(task.TriggerArgs) < 2 {
		return fmt.Errorf("task %d: pub/sub project and topic are required", task.ID)
	}
	topic := fmt.Sprintf("projects/%s/topics/%s", task.TriggerArgs[0], task.TriggerArgs[1])

	profile, err := g.client.Profile(ctx, task.OAuthToken)
	if err != nil {
		return fmt.Errorf("gmail profile: %w", err)
	}
	mailbox := profile.EmailAddress

	g.mu.Lock()
	current, known := g.watches[mailbox]
	g.mu.Unlock()

	labels := []string{label}
	if known && current.topic == topic {
		if slices.Contains(current.labels, label) && current.expiresAt.Sub(g.now()) > g.renewWithin {
			slog.Debug("gmail watch still active", "mailbox", mailbox, "expires_at", current.expiresAt)
			return nil
		}
		labels = append(slices.Clone(current.labels), label)
		slices.Sort(labels)
		labels = slices.Compact(labels)
	}

	resp, err := g.client.Watch(ctx, task.OAuthToken, &gmail.WatchRequest{
		TopicName:           topic,
		LabelIds:            labels,
		LabelFilterBehavior: "include",
	})
	if err != nil {
		return fmt.Errorf("gmail watch %s: %w", mailbox, err)
	}

	expiresAt := parseExpiration(resp.Expiration)
	g.mu.Lock()
	g.watches[mailbox] = mailboxWatch{topic: topic, labels: labels, expiresAt: expiresAt}
	g.mu.Unlock()

	slog.Info("gmail watch installed",
		"mailbox", mailbox,
		"topic", topic,
		"labels", labels,
		"history_id", resp.HistoryId,
		"expires_at", expiresAt,
	)
	return nil
}

// parseExpiration decodes Gmail's epoch-millisecond expiration. An absent
// value yields the zero time, which renews on the next cycle.
func parseExpiration(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
