package event

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDispatchAtMostOnceAlongsidePersistentListener(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDispatcher(zerolog.Nop())

	var onceFired, persistentFired int
	d.ListenOnce(KeyAdded, func(Event) { onceFired++ })
	d.AddListener(KeyAdded, func(Event) { persistentFired++ })

	d.Dispatch(ctx, Event{Kind: KeyAdded})
	require.Equal(t, 1, onceFired)
	require.Equal(t, 1, persistentFired)

	d.Dispatch(ctx, Event{Kind: KeyAdded})
	require.Equal(t, 1, onceFired, "ListenOnce must not fire on a second dispatch")
	require.Equal(t, 2, persistentFired, "AddListener must keep firing on every dispatch")
}

func TestDispatchUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDispatcher(zerolog.Nop())

	var fired int
	unsubscribe := d.AddListener(KeyRemoved, func(Event) { fired++ })

	d.Dispatch(ctx, Event{Kind: KeyRemoved})
	require.Equal(t, 1, fired)

	unsubscribe()
	d.Dispatch(ctx, Event{Kind: KeyRemoved})
	require.Equal(t, 1, fired, "a dispatch after unsubscribe must not invoke the listener")
}

func TestDispatchPanicIsSwallowed(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDispatcher(zerolog.Nop())

	var afterPanicFired bool
	d.AddListener(KeyFound, func(Event) { panic("boom") })
	d.AddListener(KeyFound, func(Event) { afterPanicFired = true })

	require.NotPanics(t, func() {
		d.Dispatch(ctx, Event{Kind: KeyFound})
	})
	require.True(t, afterPanicFired, "a panicking listener must not stop later listeners from running")
}
