/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package runqueue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedOrdering(t *testing.T) {
	const keys = 8
	const opsPerKey = 250

	k := NewKeyed("test")

	var mu sync.Mutex
	seen := make(map[string][]int)

	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("key-%d", i)
		for j := 0; j < opsPerKey; j++ {
			j := j
			wg.Add(1)
			k.Run(key, func() {
				mu.Lock()
				seen[key] = append(seen[key], j)
				mu.Unlock()
				wg.Done()
			})
		}
	}
	wg.Wait()

	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.Len(t, seen[key], opsPerKey)
		for j := 0; j < opsPerKey; j++ {
			require.Equal(t, j, seen[key][j])
		}
	}
}

func TestKeyedQueueEviction(t *testing.T) {
	k := NewKeyed("test")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		key := fmt.Sprintf("key-%d", i)
		wg.Add(1)
		k.Run(key, func() { wg.Done() })
	}
	wg.Wait()

	// drained queues are disposed
	require.Eventually(t, func() bool { return k.QueueCount() == 0 }, time.Second, time.Millisecond)
}

func TestKeyedStop(t *testing.T) {
	k := NewKeyed("test")
	k.Run("key-0", func() { time.Sleep(time.Millisecond * 250) })
	k.Run("key-1", func() { time.Sleep(time.Millisecond * 250) })

	c := make(chan struct{})
	k.Stop(func() { close(c) })

	select {
	case <-c:
	case <-time.NewTimer(time.Second).C:
		require.Fail(t, "close channel timeout")
	}

	// once stopped no further operation is run
	done := make(chan struct{}, 1)
	k.Run("key-2", func() { done <- struct{}{} })
	select {
	case <-done:
		require.Fail(t, "operation ran after stop")
	case <-time.After(time.Millisecond * 100):
	}
}
