// internal/rooms/scheduler.go
package rooms

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type taskKind int

const (
	taskResolve taskKind = iota
	taskPrune
)

type taskKey struct {
	kind   taskKind
	room   string
	player uuid.UUID
}

// scheduler runs delayed room tasks. Scheduling a key that is already
// pending replaces the earlier task.
type scheduler struct {
	mu     sync.Mutex
	timers map[taskKey]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

func newScheduler() *scheduler {
	return &scheduler{timers: make(map[taskKey]*time.Timer)}
}

func (s *scheduler) schedule(k taskKey, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[k]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		if cur, ok := s.timers[k]; !ok || cur != t || s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.timers, k)
		s.wg.Add(1)
		s.mu.Unlock()

		defer s.wg.Done()
		fn()
	})
	s.timers[k] = t
}

func (s *scheduler) cancel(k taskKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[k]; ok {
		t.Stop()
		delete(s.timers, k)
	}
}

// cancelRoom drops every pending task of a room.
func (s *scheduler) cancelRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.timers {
		if k.room == room {
			t.Stop()
			delete(s.timers, k)
		}
	}
}

func (s *scheduler) pending(k taskKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[k]
	return ok
}

// close stops all pending tasks and waits for running ones.
func (s *scheduler) close() {
	s.mu.Lock()
	s.closed = true
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
