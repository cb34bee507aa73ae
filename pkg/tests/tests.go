// Package tests holds helpers shared by the package tests.
package tests

import (
	"slices"

	"github.com/stateforward/go-iventy"
)

// Call is one recorded handler invocation.
type Call struct {
	Name  string
	Event *iventy.Event
}

// Recorder hands out handlers that log their invocations in order.
type Recorder struct {
	calls []Call
}

func (r *Recorder) Record(name string, event *iventy.Event) {
	r.calls = append(r.calls, Call{Name: name, Event: event})
}

// Func returns a handler function recording name.
func (r *Recorder) Func(name string, maybeThen ...func(event *iventy.Event)) func(event *iventy.Event) {
	return func(event *iventy.Event) {
		r.Record(name, event)
		for _, then := range maybeThen {
			then(event)
		}
	}
}

// Handler is like Func but wraps the function in an iventy.Handler.
func (r *Recorder) Handler(name string, maybeThen ...func(event *iventy.Event)) iventy.Handler {
	return iventy.Func(r.Func(name, maybeThen...))
}

func (r *Recorder) Calls() []Call {
	return slices.Clone(r.calls)
}

// Names returns the recorded names in invocation order.
func (r *Recorder) Names() []string {
	names := make([]string, 0, len(r.calls))
	for _, call := range r.calls {
		names = append(names, call.Name)
	}
	return names
}

func (r *Recorder) Count(name string) int {
	count := 0
	for _, call := range r.calls {
		if call.Name == name {
			count++
		}
	}
	return count
}

// Last returns the event of the most recent call recorded under name.
func (r *Recorder) Last(name string) *iventy.Event {
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].Name == name {
			return r.calls[i].Event
		}
	}
	return nil
}

func (r *Recorder) Reset() {
	r.calls = nil
}
