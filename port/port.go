// Package port carries events across context boundaries.
//
// A Port turns events into Messages and hands them to a Transport, and turns
// Messages received from the other side back into events that bubble into
// local emitters, extended with the tags of each binding:
//
//	local := port.New(port.Config{Transport: transport})
//	local.BubbleTo(federation.Emitter, "remote")
//	uninstall, err := local.Forward(emitter, "order")
package port

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stateforward/go-iventy"
	"github.com/stateforward/go-iventy/designator"
	"github.com/stateforward/go-iventy/kinds"
	"github.com/stateforward/go-iventy/queue"
)

var (
	ErrInvalidMessage  = errors.New("port: invalid message")
	ErrUnsupportedKind = errors.New("port: unsupported packet kind")
	ErrNoTransport     = errors.New("port: no transport")
)

var validate = validator.New()

// Message is the wire form of an event.
type Message struct {
	Id   string          `json:"id,omitempty"`
	Kind uint64          `json:"kind,omitempty"`
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data,omitempty"`
	Time time.Time       `json:"time"`
}

// Transport delivers messages to the other side of a port.
type Transport interface {
	Send(message Message) error
}

type Config struct {
	Transport Transport
	Logger    *slog.Logger
}

var DefaultConfig = Config{}

type Port struct {
	bubbles    []iventy.Bubble
	transport  Transport
	logger     *slog.Logger
	queue      *queue.Queue[Message]
	processing bool
}

func New(maybeConfig ...Config) *Port {
	cfg := DefaultConfig
	if len(maybeConfig) > 0 {
		cfg = maybeConfig[0]
	}
	return &Port{
		transport: cfg.Transport,
		logger:    cfg.Logger,
		queue:     queue.New[Message](),
	}
}

func (port *Port) log() *slog.Logger {
	if port.logger != nil {
		return port.logger
	}
	return slog.Default()
}

// BubbleTo makes consumed events trigger on target extended with tags.
func (port *Port) BubbleTo(target *iventy.Emitter, tags ...string) *Port {
	if target == nil {
		port.log().Error("port bubble target is nil")
		return port
	}
	port.bubbles = append(port.bubbles, iventy.Bubble{Target: target, Tags: slices.Clone(tags)})
	return port
}

// Consume decodes a JSON message and delivers it.
func (port *Port) Consume(raw []byte) error {
	var message Message
	if err := json.Unmarshal(raw, &message); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return port.ConsumeMessage(message)
}

// ConsumeMessage validates message and triggers the event it describes on
// every bubble target. A message consumed from inside a handler that is
// already reacting to this port is delivered once the current one is done.
func (port *Port) ConsumeMessage(message Message) error {
	if err := Validate(message); err != nil {
		return err
	}
	if port.processing {
		port.queue.Push(message)
		return nil
	}
	port.processing = true
	defer port.reset()
	for ok := true; ok; message, ok = port.queue.Pop() {
		if err := port.deliver(message); err != nil {
			return err
		}
	}
	return nil
}

// reset drops messages queued behind one whose dispatch failed or panicked.
func (port *Port) reset() {
	port.processing = false
	for port.queue.Len() > 0 {
		port.queue.Pop()
	}
}

func (port *Port) deliver(message Message) error {
	var payload any
	if len(message.Data) > 0 {
		payload = message.Data
	}
	event, err := iventy.NewEvent(message.Type, payload,
		iventy.WithKind(kinds.Remote),
		iventy.WithId(message.Id),
		iventy.WithTime(message.Time),
	)
	if err != nil {
		return err
	}
	for _, bubble := range slices.Clone(port.bubbles) {
		bubble.Target.TriggerEvent(event.ExtendEvent(bubble.Tags...))
	}
	return nil
}

// Validate checks that message can be turned into an event.
func Validate(message Message) error {
	if err := validate.Struct(message); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if message.Kind != kinds.Null && !kinds.IsKind(message.Kind, kinds.Event) {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, kinds.Name(message.Kind))
	}
	if _, err := designator.Parse(message.Type); err != nil {
		return err
	}
	return nil
}

// Encode turns event into a message. Payloads already in wire form are kept
// as they are, anything else is marshaled to JSON.
func Encode(event *iventy.Event) (Message, error) {
	message := Message{
		Id:   event.Id(),
		Kind: kinds.Event,
		Type: event.Designator().String(),
		Time: event.Time(),
	}
	switch payload := event.Payload().(type) {
	case nil:
	case json.RawMessage:
		message.Data = slices.Clone(payload)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("port: encode %s: %w", message.Type, err)
		}
		message.Data = data
	}
	return message, nil
}

// Decode unmarshals the payload of an event received through a port into T.
// Events created locally with a T payload are returned as is.
func Decode[T any](event *iventy.Event) (T, error) {
	var value T
	switch payload := event.Payload().(type) {
	case T:
		return payload, nil
	case json.RawMessage:
		if err := json.Unmarshal(payload, &value); err != nil {
			return value, fmt.Errorf("port: decode %s: %w", event, err)
		}
		return value, nil
	case nil:
		return value, nil
	default:
		return value, fmt.Errorf("port: decode %s: unexpected payload %T", event, payload)
	}
}

// Send encodes event and hands it to the transport.
func (port *Port) Send(event *iventy.Event) error {
	if port.transport == nil {
		return ErrNoTransport
	}
	message, err := Encode(event)
	if err != nil {
		return err
	}
	return port.transport.Send(message)
}

// Forward sends every event matching names on emitter through the port and
// returns a function that stops forwarding. Events that came in through a
// port are not sent back out.
func (port *Port) Forward(emitter *iventy.Emitter, names ...string) (func(), error) {
	if port.transport == nil {
		return nil, ErrNoTransport
	}
	uninstallers := make([]func(), 0, len(names))
	uninstall := func() {
		for _, uninstaller := range uninstallers {
			uninstaller()
		}
	}
	for _, name := range names {
		uninstaller, err := emitter.Handle(name, func(event *iventy.Event) {
			if kinds.IsKind(event.Kind(), kinds.Remote) {
				return
			}
			if err := port.Send(event); err != nil {
				port.log().Error("port send failed", "event", event.String(), "error", err)
			}
		})
		if err != nil {
			uninstall()
			return nil, err
		}
		uninstallers = append(uninstallers, uninstaller)
	}
	return uninstall, nil
}
