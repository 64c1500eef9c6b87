// Package notifier implements the Notifier (spec §4.5): it turns a
// NotificationEvent from the Result Processor into an email to the target's
// owner and alert contacts (down transitions only) and a push-channel
// publish for every transition, retrying bounded delivery attempts and
// de-duplicating on (incidentId, transition) so a retried or re-delivered
// event never notifies twice.
package notifier

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
	"github.com/upweb-network/monitor-engine/infrastructure/pubsub"
	"github.com/upweb-network/monitor-engine/infrastructure/resilience"
	"github.com/upweb-network/monitor-engine/ports"
)

const (
	channelEmail = "email"
	channelPush  = "push"
)

// seenCapacity bounds the idempotency set so a long-running process doesn't
// grow it without bound; oldest entries are evicted once the cap is hit.
const seenCapacity = 100_000

// Notifier satisfies ports.Notifier. Notify enqueues and returns
// immediately; delivery happens on a background goroutine per event so a
// slow email/push downstream never blocks the Result Processor's serial
// per-target queue.
type Notifier struct {
	email   ports.EmailSender
	push    ports.PushChannel
	metrics *metrics.Metrics
	logger  *logging.Logger
	retry   resilience.RetryConfig

	pushBreaker  *resilience.CircuitBreaker
	emailBreaker *resilience.CircuitBreaker

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string

	wg sync.WaitGroup
}

// New constructs a Notifier. email or push may individually be nil (e.g. a
// node that only serves push, or a test double exercising one channel).
func New(email ports.EmailSender, push ports.PushChannel, m *metrics.Metrics, logger *logging.Logger) *Notifier {
	return &Notifier{
		email:        email,
		push:         push,
		metrics:      m,
		logger:       logger,
		retry:        resilience.NotifierRetryConfig(),
		pushBreaker:  resilience.New(channelPush, resilience.DefaultConfig(), m),
		emailBreaker: resilience.New(channelEmail, resilience.DefaultConfig(), m),
		seen:         make(map[string]struct{}),
	}
}

// WithRetryConfig overrides the delivery retry ladder, used by tests that
// need retry exhaustion without waiting through the production 1/4/16/60s
// ladder.
func (n *Notifier) WithRetryConfig(cfg resilience.RetryConfig) *Notifier {
	n.retry = cfg
	return n
}

// Notify implements ports.Notifier.
func (n *Notifier) Notify(ctx context.Context, event monitoring.NotificationEvent) {
	key := event.IncidentID + "|" + string(event.Transition)
	if !n.claim(key) {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(context.Background(), event)
	}()
}

// claim reports whether (incidentId, transition) has not already been
// delivered, recording it atomically so two concurrent Notify calls for the
// same event only ever deliver once (spec §4.5 idempotency key).
func (n *Notifier) claim(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.seen[key]; ok {
		return false
	}
	n.seen[key] = struct{}{}
	n.order = append(n.order, key)
	if len(n.order) > seenCapacity {
		oldest := n.order[0]
		n.order = n.order[1:]
		delete(n.seen, oldest)
	}
	return true
}

func (n *Notifier) deliver(ctx context.Context, event monitoring.NotificationEvent) {
	start := time.Now()

	n.deliverPush(ctx, event)
	if event.Transition == monitoring.TransitionDown {
		n.deliverEmail(ctx, event)
	}

	if n.metrics != nil {
		n.metrics.NotificationLatency.WithLabelValues(channelPush).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (n *Notifier) deliverPush(ctx context.Context, event monitoring.NotificationEvent) {
	if n.push == nil {
		return
	}
	for _, topic := range topicsFor(event) {
		topic := topic
		attempt := 0
		err := resilience.Retry(ctx, n.retry, func() error {
			attempt++
			cbErr := n.pushBreaker.Execute(ctx, func() error {
				return n.push.Publish(ctx, topic, event)
			})
			if n.logger != nil {
				n.logger.LogNotificationDelivery(ctx, event.TargetID, string(event.Transition), channelPush, attempt, cbErr)
			}
			return cbErr
		})
		n.record(channelPush, event.Transition, err)
	}
}

func (n *Notifier) deliverEmail(ctx context.Context, event monitoring.NotificationEvent) {
	if n.email == nil {
		return
	}
	recipients := recipientsFor(event)
	if len(recipients) == 0 {
		return
	}
	subject, body := renderEmail(event)

	attempt := 0
	err := resilience.Retry(ctx, n.retry, func() error {
		attempt++
		cbErr := n.emailBreaker.Execute(ctx, func() error {
			return n.email.Send(ctx, recipients, subject, body)
		})
		if n.logger != nil {
			n.logger.LogNotificationDelivery(ctx, event.TargetID, string(event.Transition), channelEmail, attempt, cbErr)
		}
		return cbErr
	})
	n.record(channelEmail, event.Transition, err)
}

func (n *Notifier) record(channel string, transition monitoring.Transition, err error) {
	if n.metrics == nil || err != nil {
		return
	}
	n.metrics.NotificationsDelivered.WithLabelValues(channel, string(transition)).Inc()
}

// recipientsFor is the union of AlertContacts and OwnerEmail, per spec
// §4.5's fan-out target for down transitions — the email channel is only
// ever invoked for down transitions, never for up or for informational
// monitor:update pushes.
func recipientsFor(event monitoring.NotificationEvent) []string {
	set := make(map[string]struct{}, len(event.AlertContacts)+1)
	out := make([]string, 0, len(event.AlertContacts)+1)
	add := func(addr string) {
		if addr == "" {
			return
		}
		if _, ok := set[addr]; ok {
			return
		}
		set[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, c := range event.AlertContacts {
		add(c)
	}
	add(event.OwnerEmail)
	return out
}

// topicsFor always includes monitor:update (spec §4.5: "also emit to a
// monitor:update topic keyed by targetId"), plus the matching
// incident:{opened,resolved} topic for subscribers watching incident
// lifecycle across all targets rather than one target's owner scope.
func topicsFor(event monitoring.NotificationEvent) []string {
	topics := []string{pubsub.TopicForTarget(event.TargetID)}
	switch event.Transition {
	case monitoring.TransitionDown:
		topics = append(topics, pubsub.TopicIncidentOpened())
	case monitoring.TransitionUp:
		topics = append(topics, pubsub.TopicIncidentResolved())
	}
	return topics
}

// renderEmail builds the down-transition alert body, including every field
// spec §4.5 requires: target name, URL, transition kind, reason, region
// tag, city/country/coordinates if present, and timestamp.
func renderEmail(event monitoring.NotificationEvent) (subject, body string) {
	name := event.TargetName
	if name == "" {
		name = event.TargetURL
	}
	reason := event.Reason
	if reason == "" {
		reason = "probe failure"
	}

	subject = "[monitor] " + name + " is down"
	body = name + " (" + event.TargetURL + ") is down\n" +
		"transition: " + string(event.Transition) + "\n" +
		"reason: " + reason + "\n" +
		"region: " + event.Region + "\n" +
		"location: " + locationLine(event.LocationDetails) + "\n" +
		"occurred at: " + event.OccurredAt.Format(time.RFC3339)
	return subject, body
}

func locationLine(loc *monitoring.LocationInfo) string {
	city := loc.Field(func(l monitoring.LocationInfo) string { return l.City })
	country := loc.Field(func(l monitoring.LocationInfo) string { return l.Country })
	line := city + ", " + country
	if loc != nil && loc.HasCoords {
		line += " (" + strconv.FormatFloat(loc.Latitude, 'f', 4, 64) +
			", " + strconv.FormatFloat(loc.Longitude, 'f', 4, 64) + ")"
	}
	return line
}

// Close waits for in-flight deliveries to finish, used by graceful
// shutdown's "flushes the notification queue" requirement (spec §5, §6).
func (n *Notifier) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
