package sse

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReachesOnlyTargetUser(t *testing.T) {
	clients := NewSSEClients()
	a1 := NewClient("a")
	a2 := NewClient("a")
	b := NewClient("b")
	clients.Add(a1)
	clients.Add(a2)
	clients.Add(b)
	require.Equal(t, 3, clients.Count())

	n := clients.Send("a", Event{Name: EventNotification, Data: map[string]int{"id": 1}})
	assert.Equal(t, 2, n)
	assert.Len(t, a1.Msg, 1)
	assert.Len(t, a2.Msg, 1)
	assert.Len(t, b.Msg, 0)

	assert.Zero(t, clients.Send("nobody", Event{Name: EventNotification}))
}

func TestDeleteClosesChannel(t *testing.T) {
	clients := NewSSEClients()
	c := NewClient("a")
	clients.Add(c)
	clients.Delete(c)

	_, open := <-c.Msg
	assert.False(t, open)
	assert.Zero(t, clients.Count())

	// second delete is a no-op
	clients.Delete(c)
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	clients := NewSSEClients()
	c := NewClient("a")
	clients.Add(c)

	for i := 0; i < clientBuffer; i++ {
		require.Equal(t, 1, clients.Send("a", Event{Name: "x"}))
	}
	assert.Zero(t, clients.Send("a", Event{Name: "x"}))
}

func TestConcurrentAddSendDelete(t *testing.T) {
	clients := NewSSEClients()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient("a")
			clients.Add(c)
			clients.Send("a", Event{Name: "x"})
			clients.Delete(c)
		}()
	}
	wg.Wait()
	assert.Zero(t, clients.Count())
}

func TestEventWriteTo(t *testing.T) {
	var buf bytes.Buffer
	_, err := Event{Name: EventPublished, Data: map[string]string{"slug": "hello-1"}}.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "event: post.published\ndata: {\"slug\":\"hello-1\"}\n\n", buf.String())

	_, err = Event{Name: "bad", Data: make(chan int)}.WriteTo(&buf)
	assert.Error(t, err)
}
