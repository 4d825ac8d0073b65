package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryPublisher_FanOut(t *testing.T) {
	p := NewMemoryPublisher(zap.NewNop(), nil)
	defer p.Close()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})
	p.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e)
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
	})

	p.Publish(Event{Type: TypeTokenIssued, ClientID: "c1"})
	p.Publish(Event{Type: TypeTokenRevoked, ClientID: "c1"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, TypeTokenIssued, got[0].Type)
	assert.Equal(t, TypeTokenRevoked, got[1].Type)
}

func TestMemoryPublisher_Filter(t *testing.T) {
	p := NewMemoryPublisher(zap.NewNop(), []string{string(TypeTokenRevoked)})
	defer p.Close()

	received := make(chan Event, 4)
	p.Subscribe(func(e Event) { received <- e })

	p.Publish(Event{Type: TypeTokenIssued})
	p.Publish(Event{Type: TypeTokenRevoked})

	select {
	case e := <-received:
		assert.Equal(t, TypeTokenRevoked, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for allowed event")
	}
	select {
	case e := <-received:
		t.Fatalf("unexpected event passed filter: %s", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pubsub := sub.Subscribe(context.Background(), "authgrid:events")
	defer pubsub.Close()
	_, err := pubsub.Receive(context.Background())
	require.NoError(t, err)

	p, err := NewRedisPublisher(zap.NewNop(), client, "", nil)
	require.NoError(t, err)

	p.Publish(Event{Type: TypeClientRegistered, ClientID: "c1", Timestamp: time.Now()})

	select {
	case msg := <-pubsub.Channel():
		var e Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
		assert.Equal(t, TypeClientRegistered, e.Type)
		assert.Equal(t, "c1", e.ClientID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
