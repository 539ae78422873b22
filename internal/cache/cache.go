package cache

import (
	"context"
	"time"

	"several/internal/log"
)

// Cache is a keyed, size-bounded store for memoized results.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
	Stats() Stats
}

// Stats reports cache effectiveness since creation.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// HitRatio is 0 when the cache was never read.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cleaner is implemented by caches whose entries expire.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically purges expired entries from registered caches.
type Janitor struct {
	caches []Cleaner
	logger *log.Logger
	stop   chan struct{}
	done   chan struct{}
}

func NewJanitor(logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Janitor{
		logger: logger.WithComponent(log.ComponentCache),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register must be called before Start.
func (j *Janitor) Register(c Cleaner) {
	j.caches = append(j.caches, c)
}

func (j *Janitor) Start(interval time.Duration) {
	go j.run(interval)
}

func (j *Janitor) run(interval time.Duration) {
	defer close(j.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.DebugContext(context.Background(), "Expired cache entries removed", log.FieldCount, n)
			}
		case <-j.stop:
			return
		}
	}
}

// Sweep cleans every registered cache once and returns the number of removed entries.
func (j *Janitor) Sweep() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop waits for the sweeping goroutine to exit. Only call it after Start.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}
