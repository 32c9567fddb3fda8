// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package workpool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunsEveryTask(t *testing.T) {
	p := New(4)
	var ran atomic.Int64
	seen := make([]bool, 100)
	var mu sync.Mutex
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, p.Add(func() {
			ran.Add(1)
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		}))
	}
	require.Equal(t, 100, p.Len())

	p.Execute()
	p.Wait()

	require.Equal(t, int64(100), ran.Load())
	require.Equal(t, 0, p.Len())
	for i, ok := range seen {
		require.True(t, ok, "task %d", i)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	const workers = 3
	p := New(workers)
	var active, peak atomic.Int64
	release := make(chan struct{})
	started := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Add(func() {
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			started <- struct{}{}
			<-release
			active.Add(-1)
		}))
	}
	p.Execute()
	for i := 0; i < workers; i++ {
		<-started
	}
	close(release)
	p.Wait()
	require.LessOrEqual(t, peak.Load(), int64(workers))
}

func TestAddAfterExecute(t *testing.T) {
	p := New(2)
	p.Execute()
	require.ErrorIs(t, p.Add(func() {}), ErrStarted)
	p.Wait()
}

func TestEmptyPool(t *testing.T) {
	p := New(0)
	p.Execute()
	p.Wait()
	require.Equal(t, 0, p.Len())
}
