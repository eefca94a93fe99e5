// Package redisbus implements event.Dispatcher across process
// boundaries over go-redis PUBLISH/SUBSCRIBE, JSON-encoding each
// event.Event for the wire. Local listeners still fire synchronously
// and in-process (embedding a MemoryDispatcher); Dispatch additionally
// publishes to Redis so every other process subscribed to the same
// channel prefix observes the same event.
package redisbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/warden/event"
)

// Dispatcher is a cross-process event.Dispatcher. Locally registered
// listeners see both events Dispatch'd in this process and events
// published by other processes on the same channel prefix.
type Dispatcher struct {
	local    *event.MemoryDispatcher
	client   *goredis.Client
	channel  string
	senderID string
	logger   zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// wireEvent is the JSON shape published to Redis. Payload is carried
// best-effort: values that don't round-trip through JSON (e.g. error
// values) arrive on the far end as their string form. Sender identifies
// the publishing Dispatcher instance so the subscription loop can skip
// messages this same Dispatcher already delivered locally in Dispatch.
type wireEvent struct {
	Kind    event.Kind `json:"kind"`
	Key     string     `json:"key"`
	Payload any        `json:"payload,omitempty"`
	Sender  string     `json:"sender"`
}

// New creates a Dispatcher publishing to and subscribing on
// channelPrefix over client. Call Close to stop the subscription
// goroutine.
func New(ctx context.Context, client *goredis.Client, channelPrefix string, logger zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(ctx)
	d := &Dispatcher{
		local:    event.NewMemoryDispatcher(logger),
		client:   client,
		channel:  channelPrefix,
		senderID: uuid.NewString(),
		logger:   logger.With().Str("component", "event.redisbus").Logger(),
		cancel:   cancel,
	}

	sub := client.Subscribe(ctx, channelPrefix)
	d.wg.Add(1)
	go d.loop(ctx, sub)
	return d
}

func (d *Dispatcher) loop(ctx context.Context, sub *goredis.PubSub) {
	defer d.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var we wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
				d.logger.Error().Err(err).Msg("failed to decode remote event")
				continue
			}
			if we.Sender == d.senderID {
				// Already delivered locally by this instance's own
				// Dispatch call — skip to avoid double-firing listeners.
				continue
			}
			d.local.Dispatch(ctx, event.Event{Kind: we.Kind, Key: we.Key, Payload: we.Payload})
		}
	}
}

// AddListener implements event.Dispatcher.
func (d *Dispatcher) AddListener(kind event.Kind, fn event.Listener) func() {
	return d.local.AddListener(kind, fn)
}

// ListenOnce implements event.Dispatcher.
func (d *Dispatcher) ListenOnce(kind event.Kind, fn event.Listener) {
	d.local.ListenOnce(kind, fn)
}

// Dispatch delivers e to local listeners immediately, then publishes it
// to Redis so other processes' Dispatchers deliver it to theirs. A
// publish failure is logged, not returned — Dispatch never blocks a
// caller's local delivery on network health.
func (d *Dispatcher) Dispatch(ctx context.Context, e event.Event) {
	d.local.Dispatch(ctx, e)

	b, err := json.Marshal(wireEvent{Kind: e.Kind, Key: e.Key, Payload: e.Payload, Sender: d.senderID})
	if err != nil {
		d.logger.Error().Err(err).Str("kind", string(e.Kind)).Msg("failed to encode event for publish")
		return
	}
	if err := d.client.Publish(ctx, d.channel, b).Err(); err != nil {
		d.logger.Error().Err(err).Str("kind", string(e.Kind)).Msg("failed to publish event")
	}
}

// Close stops the subscription goroutine and waits for it to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

var _ event.Dispatcher = (*Dispatcher)(nil)
