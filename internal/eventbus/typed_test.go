package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mobiis/cargodispatch/core/events"
)

func TestFeedPushReader(t *testing.T) {
	feed := NewFeed[events.StageEvent](4)
	defer feed.Close()

	r := feed.Reader()
	feed.Push(events.StageEvent{LoadID: "load-1", Stage: events.StageTracking})

	select {
	case e := <-r:
		assert.Equal(t, "load-1", e.LoadID)
		assert.Equal(t, events.StageTracking, e.Stage)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFeedFullReaderDropsEvent(t *testing.T) {
	feed := NewFeed[int](1)
	defer feed.Close()

	r := feed.Reader()
	feed.Push(1)
	feed.Push(2) // reader buffer full, discarded

	assert.Equal(t, 1, <-r)
	select {
	case v := <-r:
		t.Fatalf("unexpected second event %d", v)
	default:
	}
}

func TestFeedClose(t *testing.T) {
	feed := NewFeed[int](0)
	r := feed.Reader()
	feed.Close()

	_, ok := <-r
	assert.False(t, ok, "channel should be closed")

	feed.Push(42)

	late := feed.Reader()
	_, ok = <-late
	assert.False(t, ok)
}

func TestFeedDrop(t *testing.T) {
	feed := NewFeed[string](0)
	defer feed.Close()

	r := feed.Reader()
	feed.Drop(r)

	_, ok := <-r
	assert.False(t, ok, "dropped channel should be closed")
}
