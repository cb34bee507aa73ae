package iventy

import "slices"

// Signal notifies observers when its controller activates it.
type Signal[T any] interface {
	Observe(callback func(payload T)) func()
}

type observer[T any] struct {
	callback func(payload T)
}

type controlledSignal[T any] struct {
	observers []*observer[T]
}

func (signal *controlledSignal[T]) Observe(callback func(payload T)) func() {
	if callback == nil {
		return func() {}
	}
	registered := &observer[T]{callback: callback}
	signal.observers = append(signal.observers, registered)
	return func() {
		signal.observers = slices.DeleteFunc(signal.observers, func(candidate *observer[T]) bool {
			return candidate == registered
		})
	}
}

// SignalController owns a Signal and decides when it fires. The zero value is
// ready to use.
type SignalController[T any] struct {
	signal *controlledSignal[T]
}

func NewSignalController[T any]() *SignalController[T] {
	return &SignalController[T]{signal: &controlledSignal[T]{}}
}

func (controller *SignalController[T]) init() *controlledSignal[T] {
	if controller.signal == nil {
		controller.signal = &controlledSignal[T]{}
	}
	return controller.signal
}

func (controller *SignalController[T]) Signal() Signal[T] {
	return controller.init()
}

// Activate calls every observer with payload in observation order.
func (controller *SignalController[T]) Activate(payload T) {
	for _, current := range slices.Clone(controller.init().observers) {
		current.callback(payload)
	}
}

// Dispose drops every observer.
func (controller *SignalController[T]) Dispose() {
	controller.init().observers = nil
}
