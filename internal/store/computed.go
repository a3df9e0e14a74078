package store

import "strings"

// ComputedFn derives a value from the tree. The getter it receives records
// which paths the computation depends on.
type ComputedFn func(get func(path string) any) any

type computedValue struct {
	fn     ComputedFn
	deps   map[string]struct{}
	cached any
	valid  bool
}

// Computed registers a derived value under name. The first Get records the
// dependency paths; later writes to any dependency lazily invalidate the
// cached result.
func (s *Store) Computed(name string, fn ComputedFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.computed[name] = &computedValue{fn: fn, deps: make(map[string]struct{})}
}

func (s *Store) computedFor(path string) *computedValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.computed[path]
}

func (s *Store) evaluateComputed(name string, cv *computedValue) any {
	s.mu.Lock()
	if cv.valid {
		cached := cv.cached
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	deps := make(map[string]struct{})
	tracked := func(path string) any {
		deps[path] = struct{}{}
		return s.Get(path)
	}
	result := cv.fn(tracked)

	s.mu.Lock()
	cv.deps = deps
	cv.cached = result
	cv.valid = true
	s.mu.Unlock()
	return result
}

// invalidateComputedFor marks computed values stale when path (or a parent
// of it) is among their dependencies. Callers hold s.mu.
func (s *Store) invalidateComputedFor(path string) {
	for _, cv := range s.computed {
		if !cv.valid {
			continue
		}
		for dep := range cv.deps {
			if dep == path || strings.HasPrefix(path, dep+".") || strings.HasPrefix(dep, path+".") {
				cv.valid = false
				break
			}
		}
	}
}

// invalidateAllComputed marks every computed value stale. Callers hold s.mu.
func (s *Store) invalidateAllComputed() {
	for _, cv := range s.computed {
		cv.valid = false
	}
}
