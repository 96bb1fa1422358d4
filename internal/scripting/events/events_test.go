package events_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/scripting/events"
)

func TestSubscribeToUnregisteredEventFails(t *testing.T) {
	m := events.New()
	_, err := m.SubscribeToEvent("onFoo", func(any) error { return nil })
	require.Error(t, err)
}

func TestTriggerEventDispatchesInRegistrationOrder(t *testing.T) {
	m := events.New()
	m.RegisterEvent("onFoo")

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		_, err := m.SubscribeToEvent("onFoo", func(any) error {
			order = append(order, i)
			return nil
		})
		require.NoError(t, err)
	}

	m.TriggerEvent("onFoo", nil)
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestListenerErrorDoesNotStopLaterListeners(t *testing.T) {
	m := events.New()
	m.RegisterEvent("onFoo")

	var secondRan bool
	_, err := m.SubscribeToEvent("onFoo", func(any) error { return errors.New("boom") })
	require.NoError(t, err)
	_, err = m.SubscribeToEvent("onFoo", func(any) error { secondRan = true; return nil })
	require.NoError(t, err)

	m.TriggerEvent("onFoo", nil)
	require.True(t, secondRan)
}

func TestListenerPanicIsRecoveredAndDoesNotStopLaterListeners(t *testing.T) {
	m := events.New()
	m.RegisterEvent("onFoo")

	var secondRan bool
	_, err := m.SubscribeToEvent("onFoo", func(any) error { panic("nope") })
	require.NoError(t, err)
	_, err = m.SubscribeToEvent("onFoo", func(any) error { secondRan = true; return nil })
	require.NoError(t, err)

	require.NotPanics(t, func() { m.TriggerEvent("onFoo", nil) })
	require.True(t, secondRan)
}

func TestRegisterEventIsIdempotent(t *testing.T) {
	m := events.New()
	m.RegisterEvent("onFoo")
	m.RegisterEvent("onFoo")

	_, err := m.SubscribeToEvent("onFoo", func(any) error { return nil })
	require.NoError(t, err)
}

func TestUnsubscribeRemovesListener(t *testing.T) {
	m := events.New()
	m.RegisterEvent("onFoo")

	var ran bool
	sub, err := m.SubscribeToEvent("onFoo", func(any) error { ran = true; return nil })
	require.NoError(t, err)

	m.Unsubscribe(sub)
	m.TriggerEvent("onFoo", nil)
	require.False(t, ran)
}
