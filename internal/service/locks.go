package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// stripedLock serializes read-modify-write cycles on the same belief id.
// Observations for different ids may proceed concurrently; two writers on the
// same id would otherwise lose an update.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu
}
