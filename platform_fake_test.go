package sharedevent

import (
	"context"
	"sync"
	"time"
)

// fakePlatform is an in-memory stand-in for platformLinux used by tests:
// it reproduces the same "named object, openable by any caller who knows
// the name" semantics flock/mmap give us, without touching the filesystem,
// so tests simulating several processes sharing one channel can run
// several *Channel[T] values in a single test binary deterministically.
type fakePlatform struct {
	mu      sync.Mutex
	mutexes map[string]*fakeGlobalMutex
	regions map[string]*fakeSharedRegion
	waits   map[string]*fakeWaitState
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		mutexes: make(map[string]*fakeGlobalMutex),
		regions: make(map[string]*fakeSharedRegion),
		waits:   make(map[string]*fakeWaitState),
	}
}

func (p *fakePlatform) key(dir, name string) string { return dir + "|" + name }

func (p *fakePlatform) OpenGlobalMutex(dir, name string) (globalMutex, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.key(dir, name)
	m, ok := p.mutexes[key]
	if !ok {
		m = &fakeGlobalMutex{}
		p.mutexes[key] = m
	}
	return m, nil
}

func (p *fakePlatform) OpenSharedRegion(dir, name string, size int) (sharedRegion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.key(dir, name)
	r, ok := p.regions[key]
	if !ok {
		r = &fakeSharedRegion{data: make([]byte, size)}
		p.regions[key] = r
	}
	return r, nil
}

func (p *fakePlatform) AcquireWaitObject(dir, name string, kind waitKind) (waitObject, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.key(dir, name)
	st, ok := p.waits[key]
	if !ok {
		st = &fakeWaitState{kind: kind}
		p.waits[key] = st
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.owned {
		return nil, false, nil
	}
	st.owned = true
	st.signaled = false
	return &fakeWaitHandle{state: st, owns: true}, true, nil
}

func (p *fakePlatform) OpenWaitObject(dir, name string, kind waitKind) (waitObject, bool, error) {
	p.mu.Lock()
	st, ok := p.waits[p.key(dir, name)]
	p.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.owned {
		return nil, false, nil
	}
	return &fakeWaitHandle{state: st, owns: false}, true, nil
}

type fakeGlobalMutex struct {
	mu sync.Mutex
}

func (m *fakeGlobalMutex) Lock() error   { m.mu.Lock(); return nil }
func (m *fakeGlobalMutex) Unlock() error { m.mu.Unlock(); return nil }
func (m *fakeGlobalMutex) Close() error  { return nil }

type fakeSharedRegion struct {
	mu   sync.Mutex
	data []byte
}

func (r *fakeSharedRegion) Size() int { return len(r.data) }

func (r *fakeSharedRegion) ReadAt() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out, nil
}

func (r *fakeSharedRegion) WriteAt(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy(r.data, data)
	return nil
}

func (r *fakeSharedRegion) Close() error { return nil }

type fakeWaitState struct {
	mu       sync.Mutex
	kind     waitKind
	owned    bool
	signaled bool
}

type fakeWaitHandle struct {
	state *fakeWaitState
	owns  bool
}

func (h *fakeWaitHandle) Kind() waitKind { return h.state.kind }

func (h *fakeWaitHandle) Set() error {
	h.state.mu.Lock()
	h.state.signaled = true
	h.state.mu.Unlock()
	return nil
}

func (h *fakeWaitHandle) Reset() error {
	h.state.mu.Lock()
	h.state.signaled = false
	h.state.mu.Unlock()
	return nil
}

func (h *fakeWaitHandle) Wait(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		h.state.mu.Lock()
		if h.state.signaled {
			if h.state.kind == autoReset {
				h.state.signaled = false
			}
			h.state.mu.Unlock()
			return nil
		}
		h.state.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *fakeWaitHandle) Release() error { return nil }

func (h *fakeWaitHandle) CloseOwned() error {
	h.state.mu.Lock()
	h.state.owned = false
	h.state.signaled = false
	h.state.mu.Unlock()
	return nil
}
