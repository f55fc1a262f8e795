package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const (
	componentRelay      = "outbox_relay"
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Source is a durable outbox written in the same transaction as the state
// change it describes.
type Source interface {
	FetchPending(ctx context.Context, limit int) ([]domoutbox.Message, error)
	MarkSent(ctx context.Context, ids []int64) error
}

// Relay moves pending outbox messages to publishers in id order. A message is
// marked sent only after every publisher accepted it, so delivery is
// at-least-once. A retry only goes to the publishers that have not accepted
// the message yet while this process holds it.
type Relay struct {
	source     Source
	publishers []domoutbox.Publisher
	interval   time.Duration
	batch      int
	log        observability.Logger
	relayed    observability.Counter // outbox_relay_total{outcome}

	mu        sync.Mutex
	delivered map[int64][]bool // outbox id -> accepted, indexed like publishers
}

type RelayOption func(*Relay)

func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func NewRelay(source Source, tel observability.Observability, publishers []domoutbox.Publisher, opts ...RelayOption) *Relay {
	tel = observability.OrNop(tel)
	r := &Relay{
		source:     source,
		publishers: publishers,
		interval:   defaultPollInterval,
		batch:      defaultBatchSize,
		log:        tel.Logger().With(observability.F("component", componentRelay)),
		relayed:    tel.Metrics().Counter(observability.MOutboxRelay),
		delivered:  make(map[int64][]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("outbox_relay_started",
		observability.F("interval", r.interval.String()),
		observability.F("batch", r.batch),
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RelayOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("outbox_relay_failed", observability.F("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			r.log.Info("outbox_relay_stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce relays one batch and returns how many messages were marked sent.
// It stops at the first message a publisher rejects so ordering per
// aggregate is kept.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	msgs, err := r.source.FetchPending(ctx, r.batch)
	if err != nil {
		r.count("fetch_error", 1)
		return 0, err
	}
	if len(msgs) == 0 {
		r.pruneBelow(-1)
		return 0, nil
	}
	// Anything older than the first pending message was marked sent elsewhere.
	r.pruneBelow(msgs[0].ID)

	sent := make([]int64, 0, len(msgs))
	var pubErr error
	for _, m := range msgs {
		if pubErr = r.publish(ctx, m); pubErr != nil {
			r.log.Warn("outbox_publish_failed",
				observability.F("outbox_id", m.ID),
				observability.F("event", m.Name),
				observability.F("error", pubErr.Error()),
			)
			r.count("publish_error", 1)
			break
		}
		sent = append(sent, m.ID)
	}

	if len(sent) > 0 {
		if err := r.source.MarkSent(ctx, sent); err != nil {
			r.count("mark_error", len(sent))
			return 0, err
		}
		r.forget(sent)
		r.count("sent", len(sent))
	}
	return len(sent), pubErr
}

func (r *Relay) publish(ctx context.Context, m domoutbox.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	accepted, ok := r.delivered[m.ID]
	if !ok {
		accepted = make([]bool, len(r.publishers))
		r.delivered[m.ID] = accepted
	}
	for i, p := range r.publishers {
		if accepted[i] {
			continue
		}
		if err := p.Publish(ctx, m); err != nil {
			return err
		}
		accepted[i] = true
	}
	return nil
}

func (r *Relay) forget(ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.delivered, id)
	}
}

// pruneBelow drops the delivery state of ids below floor, or all of it when floor is negative.
func (r *Relay) pruneBelow(floor int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.delivered {
		if floor < 0 || id < floor {
			delete(r.delivered, id)
		}
	}
}

func (r *Relay) count(outcome string, n int) {
	r.relayed.Add(float64(n), observability.L("outcome", outcome))
}
