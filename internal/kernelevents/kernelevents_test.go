// Copyright 2025 James Ross
package kernelevents

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribersInOrder(t *testing.T) {
	b := New()
	var order []string
	b.Subscribe(func(e Event) { order = append(order, "first:"+string(e.Kind)) })
	b.Subscribe(func(e Event) { order = append(order, "second:"+string(e.Kind)) })

	b.Publish(Event{Kind: PluginLoaded, Data: map[string]interface{}{"plugin_id": "p"}})

	require.Len(t, order, 2)
	assert.Equal(t, "first:plugin_loaded", order[0])
	assert.Equal(t, "second:plugin_loaded", order[1])
}

func TestPublishWithNoSubscribersIsHarmless(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() { b.Publish(Event{Kind: PolicyUpdated}) })
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New()
	var mu sync.Mutex
	count := 0
	b.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(Event{Kind: PolicyEvaluated})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}
