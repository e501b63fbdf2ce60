package seek

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_SameTargetDeliveredEachTime(t *testing.T) {
	ch := NewChannel()
	var got []Command
	ch.Subscribe(func(c Command) { got = append(got, c) })

	first := ch.Publish(90)
	second := ch.Publish(90)

	require.Len(t, got, 2)
	assert.Equal(t, 90.0, got[0].TargetSeconds)
	assert.Equal(t, 90.0, got[1].TargetSeconds)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.Greater(t, second.Nonce, first.Nonce)
}

func TestChannel_LateSubscriberSeesNothingEarlier(t *testing.T) {
	ch := NewChannel()
	ch.Publish(10)
	ch.Publish(20)

	var got []Command
	ch.Subscribe(func(c Command) { got = append(got, c) })
	assert.Empty(t, got)

	ch.Publish(30)
	require.Len(t, got, 1)
	assert.Equal(t, 30.0, got[0].TargetSeconds)
}

func TestChannel_RegistrationOrder(t *testing.T) {
	ch := NewChannel()
	var order []string
	ch.Subscribe(func(Command) { order = append(order, "a") })
	ch.Subscribe(func(Command) { order = append(order, "b") })
	ch.Subscribe(func(Command) { order = append(order, "c") })

	ch.Publish(1)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestChannel_Unsubscribe(t *testing.T) {
	ch := NewChannel()
	calls := 0
	unsubscribe := ch.Subscribe(func(Command) { calls++ })
	other := 0
	ch.Subscribe(func(Command) { other++ })

	ch.Publish(5)
	unsubscribe()
	unsubscribe()
	ch.Publish(6)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
	assert.Equal(t, 1, ch.Subscribers())
}

func TestChannel_UnsubscribeDuringDelivery(t *testing.T) {
	ch := NewChannel()
	var unsubscribe func()
	calls := 0
	unsubscribe = ch.Subscribe(func(Command) {
		calls++
		unsubscribe()
	})

	ch.Publish(1)
	ch.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestChannel_Current(t *testing.T) {
	ch := NewChannel()
	_, ok := ch.Current()
	assert.False(t, ok)

	ch.Publish(12)
	cmd := ch.Publish(42)

	cur, ok := ch.Current()
	require.True(t, ok)
	assert.Equal(t, cmd, cur)
}

func TestChannel_NegativeTargetClamped(t *testing.T) {
	ch := NewChannel()
	assert.Equal(t, 0.0, ch.Publish(-3).TargetSeconds)
}

func TestChannel_ConcurrentPublishUniqueNonces(t *testing.T) {
	ch := NewChannel()
	var mu sync.Mutex
	seen := map[uint64]bool{}
	ch.Subscribe(func(c Command) {
		mu.Lock()
		seen[c.Nonce] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch.Publish(7)
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}

func TestChannel_ConcurrentPublishDeliveredInNonceOrder(t *testing.T) {
	ch := NewChannel()
	var mu sync.Mutex
	var applied []uint64
	handling := make(chan struct{})
	release := make(chan struct{})
	ch.Subscribe(func(c Command) {
		if c.Nonce == 1 {
			close(handling)
			<-release
		}
		mu.Lock()
		applied = append(applied, c.Nonce)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Publish(10)
	}()
	<-handling

	second := make(chan Command)
	go func() { second <- ch.Publish(90) }()

	select {
	case <-second:
		t.Fatal("second publish returned while the first was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done
	cmd := <-second

	assert.Equal(t, []uint64{1, 2}, applied)
	cur, ok := ch.Current()
	require.True(t, ok)
	assert.Equal(t, cmd, cur)
	assert.Equal(t, 90.0, cur.TargetSeconds)
}
