package broadcast

import (
	"sort"
	"sync"
)

// Subject fans a typed value out to subscribers. A value subject remembers the
// latest value and hands it to late subscribers; a stream subject does not.
// Deliveries are serialized: subscribers see values in publish order, one at a
// time, on the publishing goroutine. A subscriber must not publish to or
// subscribe to the same Subject from inside its callback.
type Subject[T any] struct {
	mu      sync.Mutex
	deliver sync.Mutex
	subs    map[uint64]func(T)
	nextID  uint64
	last    T
	hasLast bool
	replay  bool
	equal   func(a, b T) bool
}

// NewStream returns a Subject without replay.
func NewStream[T any]() *Subject[T] {
	return &Subject[T]{subs: make(map[uint64]func(T))}
}

// NewValue returns a Subject that starts with initial and replays the latest
// value to each new subscriber.
func NewValue[T any](initial T) *Subject[T] {
	return &Subject[T]{
		subs:    make(map[uint64]func(T)),
		last:    initial,
		hasLast: true,
		replay:  true,
	}
}

// WithDedupe drops a published value equal to the previous one.
func (s *Subject[T]) WithDedupe(equal func(a, b T) bool) *Subject[T] {
	s.mu.Lock()
	s.equal = equal
	s.mu.Unlock()
	return s
}

// Publish delivers v to every current subscriber. It reports false when v was
// dropped as a duplicate.
func (s *Subject[T]) Publish(v T) bool {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.equal != nil && s.hasLast && s.equal(s.last, v) {
		s.mu.Unlock()
		return false
	}
	s.last = v
	s.hasLast = true
	subs := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
	return true
}

// Subscribe registers fn and returns the function that removes it. On a value
// subject fn is called with the current value before Subscribe returns.
func (s *Subject[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	current, replay := s.last, s.replay && s.hasLast
	s.mu.Unlock()

	if replay {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Value returns the most recently published value.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Len returns the number of subscribers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subject[T]) snapshotLocked() []func(T) {
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	return fns
}
