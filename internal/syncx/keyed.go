// Package syncx holds locking helpers shared by the client store and the
// server upload path.
package syncx

import (
	"hash/fnv"
	"sync"
)

const stripes = 64

// KeyedMutex serializes callers that use the same key. Keys are hashed onto
// a fixed set of mutexes, so unrelated keys may occasionally wait on each
// other; callers must not hold two keys at once.
type KeyedMutex struct {
	locks [stripes]sync.Mutex
}

// Lock blocks until key is free and returns the matching unlock.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	m := &k.locks[stripe(key)]
	m.Lock()
	return m.Unlock
}

func stripe(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % stripes
}
