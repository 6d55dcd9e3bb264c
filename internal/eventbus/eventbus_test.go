package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	sub := bus.Subscribe()
	bus.Publish("load-received")

	select {
	case e := <-sub:
		assert.Equal(t, "load-received", e)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusNonBlockingPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	sub := bus.Subscribe()
	// Fill the subscriber buffer and keep publishing; the bus must not stall.
	for i := 0; i < 100; i++ {
		bus.Publish(i)
	}

	// The first buffered events are still delivered.
	select {
	case e := <-sub:
		assert.Equal(t, 0, e)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusClose(t *testing.T) {
	bus := New()
	sub := bus.Subscribe()
	bus.Close()

	_, ok := <-sub
	assert.False(t, ok, "channel should be closed")

	// Publishing after close is a no-op.
	bus.Publish("dropped")

	// Subscribing after close yields a closed channel.
	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	sub := bus.Subscribe()
	bus.Unsubscribe(sub)

	_, ok := <-sub
	assert.False(t, ok, "unsubscribed channel should be closed")

	bus.Publish("after-unsubscribe")
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New()
	sub := bus.Subscribe()
	bus.Close()

	// Must not panic on double close of the channel.
	bus.Unsubscribe(sub)
}
