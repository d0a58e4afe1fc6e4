package hostapi

import (
	"context"
	"fmt"
	"path"
	"sync"
)

// FakeIO is an in-memory IO double for tests: no real host process,
// just maps guarded by a mutex, good enough to exercise subscribe/publish
// and object/file round-trips.
type FakeIO struct {
	mu sync.Mutex

	objects map[string]ForeignObject
	states  map[string]ForeignState
	subs    map[string][]StateHandler // pattern -> handlers
	files   map[string][]byte
	sent    []FakeSendTo
}

// FakeSendTo records one SendTo call for assertions.
type FakeSendTo struct {
	Instance string
	Command  string
	Payload  any
}

// NewFakeIO returns an empty FakeIO.
func NewFakeIO() *FakeIO {
	return &FakeIO{
		objects: make(map[string]ForeignObject),
		states:  make(map[string]ForeignState),
		subs:    make(map[string][]StateHandler),
		files:   make(map[string][]byte),
	}
}

// PutObject seeds an object for GetForeignObject(s) to return.
func (f *FakeIO) PutObject(o ForeignObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[o.ID] = o
}

func (f *FakeIO) GetForeignObject(_ context.Context, id string) (*ForeignObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("hostapi: object %q not found", id)
	}
	return &o, nil
}

func (f *FakeIO) GetForeignObjects(_ context.Context, pattern string) ([]ForeignObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ForeignObject
	for id, o := range f.objects {
		if matched, _ := path.Match(pattern, id); matched {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *FakeIO) GetForeignState(_ context.Context, id string) (*ForeignState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return nil, fmt.Errorf("hostapi: state %q not found", id)
	}
	return &s, nil
}

func (f *FakeIO) SubscribeForeignStates(_ context.Context, pattern string, h StateHandler) (func(), error) {
	f.mu.Lock()
	f.subs[pattern] = append(f.subs[pattern], h)
	f.mu.Unlock()

	unsubscribed := false
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if unsubscribed {
			return
		}
		unsubscribed = true
		handlers := f.subs[pattern]
		for i, hh := range handlers {
			if fmt.Sprintf("%p", hh) == fmt.Sprintf("%p", h) {
				f.subs[pattern] = append(handlers[:i], handlers[i+1:]...)
				break
			}
		}
	}, nil
}

// PublishState updates id's state and notifies every subscription whose
// pattern matches, as a real host's event pump would.
func (f *FakeIO) PublishState(id string, s ForeignState) {
	f.mu.Lock()
	prev, hadPrev := f.states[id]
	f.states[id] = s
	var handlers []StateHandler
	for pattern, hs := range f.subs {
		if matched, _ := path.Match(pattern, id); matched {
			handlers = append(handlers, hs...)
		}
	}
	f.mu.Unlock()

	var prevPtr *ForeignState
	if hadPrev {
		p := prev
		prevPtr = &p
	}
	sCopy := s
	for _, h := range handlers {
		h(id, &sCopy, prevPtr)
	}
}

func (f *FakeIO) SendTo(_ context.Context, instance, command string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, FakeSendTo{Instance: instance, Command: command, Payload: payload})
	return nil
}

// Sent returns every SendTo call recorded so far.
func (f *FakeIO) Sent() []FakeSendTo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeSendTo(nil), f.sent...)
}

func (f *FakeIO) Mkdir(_ context.Context, path string) error {
	return nil
}

func (f *FakeIO) WriteFile(_ context.Context, filePath string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), data...)
	f.files[filePath] = cp
	return nil
}

// ReadFile returns a previously written file's contents, for test assertions.
func (f *FakeIO) ReadFile(filePath string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.files[filePath]
	return d, ok
}
