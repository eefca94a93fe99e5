// Package metrics bridges an event.Dispatcher to Prometheus, subscribing
// to every toolkit event kind and incrementing a counter per kind
// instead of exposing an HTTP surface of its own — wiring is the
// caller's responsibility via Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prn-tf/warden/event"
)

// Collector owns the Prometheus vectors this package exports and the
// unsubscribe funcs returned by Dispatcher.AddListener, so Close can
// cleanly detach from the dispatcher.
type Collector struct {
	eventsTotal    *prometheus.CounterVec
	unsubscribes   []func()
	registry       *prometheus.Registry
}

// New creates a Collector registered against a fresh registry and
// subscribes it to every kind the event package defines.
func New(dispatcher event.Dispatcher) *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		eventsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "events_total",
			Help:      "Total coordination events dispatched, by kind.",
		}, []string{"kind"}),
	}

	for _, kind := range allKinds {
		k := kind
		unsub := dispatcher.AddListener(k, func(e event.Event) {
			c.eventsTotal.WithLabelValues(string(e.Kind)).Inc()
		})
		c.unsubscribes = append(c.unsubscribes, unsub)
	}
	return c
}

// Handler returns an http.Handler serving this Collector's registry in
// the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Close unsubscribes from every kind. Safe to call once.
func (c *Collector) Close() {
	for _, unsub := range c.unsubscribes {
		unsub()
	}
	c.unsubscribes = nil
}

var allKinds = []event.Kind{
	event.KeyFound, event.KeyNotFound, event.KeyAdded, event.KeyUpdated,
	event.KeyRemoved, event.KeyIncremented, event.KeyDecremented, event.KeysCleared,
	event.Acquired, event.FailedAcquire, event.Released, event.FailedRelease,
	event.ForceReleased, event.Refreshed, event.FailedRefresh, event.Unavailable,
	event.ReaderAcquired, event.ReaderFailedAcquire, event.ReaderReleased,
	event.ReaderFailedRelease, event.ReaderRefreshed, event.ReaderFailedRefresh,
	event.ReaderAllForceReleased, event.WriterAcquired, event.WriterFailedAcquire,
	event.WriterReleased, event.WriterFailedRelease, event.WriterRefreshed,
	event.WriterFailedRefresh, event.WriterForceReleased, event.UnexpectedError,
}
