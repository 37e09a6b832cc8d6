package syncx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	var k KeyedMutex
	var mu sync.Mutex
	inside, maxInside := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("acct/B-1")
			defer unlock()

			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}

func TestKeyedMutex_StripeIsStable(t *testing.T) {
	assert.Equal(t, stripe("acct/B-1"), stripe("acct/B-1"))
	assert.Less(t, stripe("acct/B-2"), uint32(stripes))
}

func TestKeyedMutex_UnlockReleases(t *testing.T) {
	var k KeyedMutex
	unlock := k.Lock("a")
	unlock()

	done := make(chan struct{})
	go func() {
		k.Lock("a")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
