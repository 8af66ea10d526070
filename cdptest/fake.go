// Package cdptest provides a hand-written fake of cdp.Client for testing
// the core engine without a real browser, matching this codebase's
// preference for fakes over a mocking framework (go.uber.org/mock appears
// only as an indirect dependency in the retrieval pack, never imported
// directly).
package cdptest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Fake is an in-memory cdp.Client. Tests program it with Respond and
// trigger subscribed handlers with Emit.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]response
	calls     []Call
	handlers  map[string][]func(json.RawMessage)
	active    bool
}

type response struct {
	result json.RawMessage
	err    error
}

// Call records one Send invocation for assertions.
type Call struct {
	Method string
	Params any
}

// New returns a Fake in the active state.
func New() *Fake {
	return &Fake{
		responses: make(map[string][]response),
		handlers:  make(map[string][]func(json.RawMessage)),
		active:    true,
	}
}

// Respond queues a successful response for the next Send(method, ...) call.
// Multiple calls to Respond for the same method queue in FIFO order; if
// the queue is empty, Send returns an empty JSON object.
func (f *Fake) Respond(method string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		panic(fmt.Sprintf("cdptest: marshal response for %s: %v", method, err))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = append(f.responses[method], response{result: raw})
}

// Fail queues an error response for the next Send(method, ...) call.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = append(f.responses[method], response{err: err})
}

// Send implements cdp.Client.
func (f *Fake) Send(_ context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Params: params})
	queue := f.responses[method]
	var r response
	if len(queue) > 0 {
		r, queue = queue[0], queue[1:]
		f.responses[method] = queue
	} else {
		r = response{result: json.RawMessage("{}")}
	}
	f.mu.Unlock()
	return r.result, r.err
}

// On implements cdp.Client.
func (f *Fake) On(event string, handler func(json.RawMessage)) func() {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], handler)
	idx := len(f.handlers[event]) - 1
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[event][idx] = nil
	}
}

// IsActive implements cdp.Client.
func (f *Fake) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// SetActive toggles the IsActive() result, for simulating a dropped
// connection.
func (f *Fake) SetActive(active bool) {
	f.mu.Lock()
	f.active = active
	f.mu.Unlock()
}

// Emit synchronously invokes every handler registered for event.
func (f *Fake) Emit(event string, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(fmt.Sprintf("cdptest: marshal event %s: %v", event, err))
	}
	f.mu.Lock()
	handlers := append([]func(json.RawMessage){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(raw)
		}
	}
}

// Calls returns every Send call recorded so far, in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call{}, f.calls...)
}
