// Package iventy is an in-process publish/subscribe library built around
// designators: dotted "name.tag1.tag2" strings that pick a channel and
// qualify it with an unordered set of tags.
//
// Handlers registered on an emitter under "order.created" run for every event
// triggered on the "order" channel that carries the "created" tag, such as
// "order.created.urgent". Handlers registered under the bare channel name run
// for every event on that channel. Dispatch is synchronous and depth first:
// after the handlers of an emitter run, the event bubbles to every emitter it
// was bound to with BubbleTo, picking up the tags of that binding on the way,
// unless a handler stopped it.
package iventy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"time"
	"weak"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stateforward/go-iventy/clock"
	"github.com/stateforward/go-iventy/designator"
	"github.com/stateforward/go-iventy/kinds"
	"github.com/stateforward/go-iventy/pkg/telemetry"
)

var ErrNilHandler = errors.New("iventy: nil handler")

func newId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

/******* Handler *******/

// Handler reacts to events. Handlers are compared by interface equality when
// they are unregistered, so implementations should be pointers or other
// comparable values. Func adapts a plain function.
type Handler interface {
	Handle(event *Event)
}

type funcHandler struct {
	fn func(event *Event)
}

func (handler *funcHandler) Handle(event *Event) {
	handler.fn(event)
}

// Func wraps fn in a Handler with its own identity. Wrapping the same
// function twice yields two distinct handlers.
func Func(fn func(event *Event)) Handler {
	return &funcHandler{fn: fn}
}

func same(a, b Handler) bool {
	if a == nil || b == nil {
		return false
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.ValueOf(a).Comparable() {
		return false
	}
	return a == b
}

/******* Tags *******/

// Tags selects the tags a handler is registered or unregistered under.
// Untagged and Tagged() are different values: registering under either adds
// a single wildcard entry, but unregistering Untagged removes every entry of
// a handler while unregistering Tagged() removes nothing.
type Tags struct {
	list      []string
	specified bool
}

var Untagged = Tags{}

func Tagged(tags ...string) Tags {
	return Tags{list: slices.Clone(tags), specified: true}
}

// IsTagged reports whether tags was built with Tagged.
func (tags Tags) IsTagged() bool {
	return tags.specified
}

// List returns a copy of the selected tags.
func (tags Tags) List() []string {
	return slices.Clone(tags.list)
}

func tagsOf(d designator.Designator) Tags {
	if d.Len() == 0 {
		return Untagged
	}
	return Tagged(d.Tags()...)
}

/******* Channel *******/

type entry struct {
	// an empty tag matches every event on the channel
	tag     string
	handler Handler
}

// Channel holds the registrations for one channel name in registration order.
type Channel struct {
	entries []entry
}

func NewChannel() *Channel {
	return &Channel{}
}

// Register adds one entry per tag, or a single wildcard entry for Untagged,
// Tagged() and the empty tag.
func (channel *Channel) Register(handler Handler, tags Tags) *Channel {
	if handler == nil {
		slog.Error("register called with a nil handler")
		return channel
	}
	list := tags.List()
	if len(list) == 0 {
		channel.entries = append(channel.entries, entry{handler: handler})
		return channel
	}
	for _, tag := range list {
		channel.entries = append(channel.entries, entry{tag: tag, handler: handler})
	}
	return channel
}

// Unregister removes the entries of handler. Untagged removes all of them,
// otherwise only the entries under each listed tag are removed.
func (channel *Channel) Unregister(handler Handler, tags Tags) *Channel {
	if !tags.IsTagged() {
		channel.remove(func(entry entry) bool {
			return same(entry.handler, handler)
		})
		return channel
	}
	for _, tag := range tags.List() {
		channel.remove(func(entry entry) bool {
			return entry.tag == tag && same(entry.handler, handler)
		})
	}
	return channel
}

// Observe registers fn as a wildcard entry and returns a function that
// unregisters it. Calling the returned function more than once is harmless.
func (channel *Channel) Observe(fn func(event *Event)) func() {
	handler := Func(fn)
	channel.Register(handler, Untagged)
	return func() {
		channel.Unregister(handler, Untagged)
	}
}

func (channel *Channel) remove(match func(entry entry) bool) {
	channel.entries = slices.DeleteFunc(channel.entries, match)
}

// Trigger invokes every entry whose tag is empty or carried by the event.
// Entries are read from a snapshot taken before the first handler runs, so
// handlers added or removed during dispatch take effect on the next trigger.
func (channel *Channel) Trigger(event *Event) {
	if channel == nil || event == nil {
		return
	}
	for _, entry := range slices.Clone(channel.entries) {
		if entry.tag == "" || event.Has(entry.tag) {
			entry.handler.Handle(event)
		}
	}
}

// Size counts entries, so a handler registered under three tags counts three times.
func (channel *Channel) Size() int {
	if channel == nil {
		return 0
	}
	return len(channel.entries)
}

/******* Packet *******/

// Packet is the payload carrier shared by everything routed through the system.
type Packet struct {
	kind    uint64
	id      string
	payload any
	time    time.Time
}

func (packet *Packet) Kind() uint64 {
	if packet == nil {
		return kinds.Null
	}
	return packet.kind
}

func (packet *Packet) Id() string {
	if packet == nil {
		return ""
	}
	return packet.id
}

func (packet *Packet) Payload() any {
	if packet == nil {
		return nil
	}
	return packet.payload
}

func (packet *Packet) Time() time.Time {
	if packet == nil {
		return time.Time{}
	}
	return packet.time
}

/******* Event *******/

// Event is a packet addressed by a designator. Its target and previous event
// are weak references: an event never keeps the emitter that created it, or
// the event that caused it, alive.
type Event struct {
	Packet
	designator designator.Designator
	target     weak.Pointer[Emitter]
	previous   weak.Pointer[Event]
	ctx        context.Context
	prevented  bool
	stopped    bool
}

// EventOption customizes events built by NewEvent.
type EventOption func(event *Event)

func WithKind(kind uint64) EventOption {
	return func(event *Event) {
		event.kind = kind
	}
}

func WithId(id string) EventOption {
	return func(event *Event) {
		if id != "" {
			event.id = id
		}
	}
}

func WithTime(t time.Time) EventOption {
	return func(event *Event) {
		if !t.IsZero() {
			event.time = t
		}
	}
}

func WithTarget(target *Emitter) EventOption {
	return func(event *Event) {
		event.target = weak.Make(target)
	}
}

func WithPrevious(previous *Event) EventOption {
	return func(event *Event) {
		event.previous = weak.Make(previous)
	}
}

// NewEvent parses name and builds an event carrying payload.
func NewEvent(name string, payload any, options ...EventOption) (*Event, error) {
	d, err := designator.Parse(name)
	if err != nil {
		return nil, err
	}
	event := &Event{
		Packet: Packet{
			kind:    kinds.Event,
			id:      newId(),
			payload: payload,
		},
		designator: d,
		ctx:        context.Background(),
	}
	for _, option := range options {
		option(event)
	}
	if event.time.IsZero() {
		if target := event.Target(); target != nil {
			event.time = target.clock.Now()
		} else {
			event.time = time.Now()
		}
	}
	return event, nil
}

func (event *Event) Designator() designator.Designator {
	if event == nil {
		return designator.Designator{}
	}
	return event.designator
}

// Type returns the channel name of the event.
func (event *Event) Type() string {
	if event == nil {
		return ""
	}
	return event.designator.Name()
}

func (event *Event) Tags() []string {
	if event == nil {
		return []string{}
	}
	return event.designator.Tags()
}

func (event *Event) Has(tag string) bool {
	if event == nil {
		return false
	}
	return event.designator.Has(tag)
}

// Target returns the emitter that created the event, or nil once that
// emitter is gone.
func (event *Event) Target() *Emitter {
	if event == nil {
		return nil
	}
	return event.target.Value()
}

// Previous returns the event that led to this one, or nil at the root of the
// chain or once the previous event is gone.
func (event *Event) Previous() *Event {
	if event == nil {
		return nil
	}
	return event.previous.Value()
}

func (event *Event) Context() context.Context {
	if event == nil || event.ctx == nil {
		return context.Background()
	}
	return event.ctx
}

// WithContext returns a shallow copy of the event carrying ctx. Latches are
// copied, not shared.
func (event *Event) WithContext(ctx context.Context) *Event {
	if ctx == nil {
		panic("nil context")
	}
	clone := *event
	clone.ctx = ctx
	return &clone
}

func (event *Event) Prevent() *Event {
	event.prevented = true
	return event
}

func (event *Event) IsPrevented() bool {
	return event != nil && event.prevented
}

// Stop keeps the event from bubbling past the emitter currently dispatching
// it. Handlers of that emitter still run.
func (event *Event) Stop() *Event {
	event.stopped = true
	return event
}

func (event *Event) IsStopped() bool {
	return event != nil && event.stopped
}

// CreateEvent builds an event caused by this one. The target defaults to the
// target of this event.
func (event *Event) CreateEvent(name string, payload any, maybeTarget ...*Emitter) (*Event, error) {
	target := event.Target()
	if len(maybeTarget) > 0 && maybeTarget[0] != nil {
		target = maybeTarget[0]
	}
	created, err := NewEvent(name, payload, WithTarget(target), WithPrevious(event))
	if err != nil {
		return nil, err
	}
	created.ctx = event.Context()
	return created, nil
}

// ExtendEvent returns a copy of the event with additional tags. Payload,
// identity, target and previous event are kept; the latches start cleared.
func (event *Event) ExtendEvent(tags ...string) *Event {
	return event.extend(event.Context(), tags)
}

func (event *Event) extend(ctx context.Context, tags []string) *Event {
	return &Event{
		Packet:     event.Packet,
		designator: event.designator.Extend(tags...),
		target:     event.target,
		previous:   event.previous,
		ctx:        ctx,
	}
}

func (event *Event) String() string {
	return event.Designator().String()
}

/******* Emitter *******/

// Bubble is an edge of the bubble graph.
type Bubble struct {
	Target *Emitter
	Tags   []string
}

type Config struct {
	// Name identifies the emitter in logs, spans and diagrams. Defaults to the emitter id.
	Name           string
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	Clock          clock.Clock
}

var DefaultConfig = Config{
	TracerProvider: telemetry.NewProvider(),
	Clock:          clock.Make(),
}

// EmitterLike is implemented by anything handlers can be installed on.
type EmitterLike interface {
	Handle(name string, fn func(event *Event)) (func(), error)
	On(name string, handler Handler) error
	Off(name string, maybeHandler ...Handler) error
}

type Emitter struct {
	id       string
	name     string
	channels map[string]*Channel
	bubbles  []Bubble
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

func New(maybeConfig ...Config) *Emitter {
	cfg := DefaultConfig
	if len(maybeConfig) > 0 {
		override := maybeConfig[0]
		cfg.Name = override.Name
		if override.Logger != nil {
			cfg.Logger = override.Logger
		}
		if override.TracerProvider != nil {
			cfg.TracerProvider = override.TracerProvider
		}
		if override.Clock != nil {
			cfg.Clock = override.Clock
		}
	}
	emitter := &Emitter{
		id:       newId(),
		name:     cfg.Name,
		channels: map[string]*Channel{},
		logger:   cfg.Logger,
		tracer:   cfg.TracerProvider.Tracer("github.com/stateforward/go-iventy"),
		clock:    cfg.Clock,
	}
	if emitter.name == "" {
		emitter.name = emitter.id
	}
	return emitter
}

func (emitter *Emitter) log() *slog.Logger {
	if emitter.logger != nil {
		return emitter.logger
	}
	return slog.Default()
}

func (emitter *Emitter) Id() string {
	if emitter == nil {
		return ""
	}
	return emitter.id
}

func (emitter *Emitter) Name() string {
	if emitter == nil {
		return ""
	}
	return emitter.name
}

func (emitter *Emitter) parse(name string) (designator.Designator, error) {
	d, err := designator.Parse(name)
	if err != nil {
		emitter.log().Error("invalid designator", "emitter", emitter.name, "designator", name, "error", err)
	}
	return d, err
}

// Channel returns the channel registered under name, creating it if needed.
func (emitter *Emitter) Channel(name string) *Channel {
	channel, ok := emitter.channels[name]
	if !ok {
		channel = NewChannel()
		emitter.channels[name] = channel
	}
	return channel
}

// Channels returns the names of the channels of the emitter, sorted.
func (emitter *Emitter) Channels() []string {
	names := make([]string, 0, len(emitter.channels))
	for name := range emitter.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// On registers handler under the channel and tags of name. A handler
// registered under several tags runs once for each of them the event carries.
func (emitter *Emitter) On(name string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w for %q", ErrNilHandler, name)
	}
	d, err := emitter.parse(name)
	if err != nil {
		return err
	}
	emitter.Channel(d.Name()).Register(handler, tagsOf(d))
	return nil
}

// Handle is like On but returns a function that uninstalls fn.
func (emitter *Emitter) Handle(name string, fn func(event *Event)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("%w for %q", ErrNilHandler, name)
	}
	handler := Func(fn)
	if err := emitter.On(name, handler); err != nil {
		return nil, err
	}
	channelName := designator.MustParse(name).Name()
	installed := true
	return func() {
		if !installed {
			return
		}
		installed = false
		if channel, ok := emitter.channels[channelName]; ok {
			channel.Unregister(handler, Untagged)
		}
	}, nil
}

// Off removes registrations. Without a handler or tags the whole channel is
// dropped; without a handler but with tags every entry under those tags goes;
// with a handler, the handler is unregistered from the tags of name, or from
// the entire channel when name has none.
func (emitter *Emitter) Off(name string, maybeHandler ...Handler) error {
	d, err := emitter.parse(name)
	if err != nil {
		return err
	}
	var handler Handler
	if len(maybeHandler) > 0 {
		handler = maybeHandler[0]
	}
	channel, ok := emitter.channels[d.Name()]
	if !ok {
		return nil
	}
	switch {
	case handler == nil && d.Len() == 0:
		delete(emitter.channels, d.Name())
	case handler == nil:
		for _, tag := range d.Tags() {
			channel.remove(func(entry entry) bool {
				return entry.tag == tag
			})
		}
	default:
		channel.Unregister(handler, tagsOf(d))
	}
	return nil
}

// CreateEvent builds an event targeting this emitter.
func (emitter *Emitter) CreateEvent(name string, payload any, maybePrevious ...*Event) (*Event, error) {
	if _, err := emitter.parse(name); err != nil {
		return nil, err
	}
	options := []EventOption{WithTarget(emitter)}
	if len(maybePrevious) > 0 && maybePrevious[0] != nil {
		options = append(options, WithPrevious(maybePrevious[0]), func(event *Event) {
			event.ctx = maybePrevious[0].Context()
		})
	}
	return NewEvent(name, payload, options...)
}

// Trigger creates an event from name and dispatches it.
func (emitter *Emitter) Trigger(name string, payload any, maybePrevious ...*Event) (*Event, error) {
	event, err := emitter.CreateEvent(name, payload, maybePrevious...)
	if err != nil {
		return nil, err
	}
	return emitter.TriggerEvent(event), nil
}

// TriggerEvent runs the handlers of the event's channel and, unless one of
// them stopped the event, triggers a tag-extended copy on every bubble target
// in the order the targets were bound. Panics raised by handlers are not
// recovered and abort the remaining dispatch.
func (emitter *Emitter) TriggerEvent(event *Event) *Event {
	if emitter == nil || event == nil {
		return event
	}
	ctx, span := emitter.tracer.Start(event.Context(), "iventy.Trigger", trace.WithAttributes(
		attribute.String("iventy.emitter", emitter.name),
		attribute.String("iventy.channel", event.Type()),
		attribute.StringSlice("iventy.tags", event.Tags()),
		attribute.String("iventy.event.id", event.Id()),
		attribute.String("iventy.event.kind", kinds.Name(event.Kind())),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			span.RecordError(fmt.Errorf("handler panic: %v", r))
			span.SetStatus(codes.Error, "handler panic")
			panic(r)
		}
	}()
	if channel, ok := emitter.channels[event.Type()]; ok {
		if emitter.log().Enabled(ctx, slog.LevelDebug) {
			emitter.log().DebugContext(ctx, "dispatch", "emitter", emitter.name, "event", event.String(), "handlers", channel.Size())
		}
		channel.Trigger(event)
	}
	if event.IsStopped() {
		span.SetAttributes(attribute.Bool("iventy.stopped", true))
		return event
	}
	for _, bubble := range slices.Clone(emitter.bubbles) {
		bubble.Target.TriggerEvent(event.extend(ctx, bubble.Tags))
	}
	return event
}

// BubbleTo adds an edge to target. Events that are not stopped are forwarded
// to target extended with tags. Binding the same target again adds another
// edge. A cycle in the bubble graph recurses without bound.
func (emitter *Emitter) BubbleTo(target *Emitter, tags ...string) *Emitter {
	if target == nil {
		emitter.log().Error("bubble target is nil", "emitter", emitter.name)
		return emitter
	}
	emitter.bubbles = append(emitter.bubbles, Bubble{Target: target, Tags: slices.Clone(tags)})
	return emitter
}

// Unbubble removes every edge to target.
func (emitter *Emitter) Unbubble(target *Emitter) *Emitter {
	emitter.bubbles = slices.DeleteFunc(emitter.bubbles, func(bubble Bubble) bool {
		return bubble.Target == target
	})
	return emitter
}

// Bubbles returns the edges of the emitter in binding order.
func (emitter *Emitter) Bubbles() []Bubble {
	bubbles := make([]Bubble, len(emitter.bubbles))
	for i, bubble := range emitter.bubbles {
		bubbles[i] = Bubble{Target: bubble.Target, Tags: slices.Clone(bubble.Tags)}
	}
	return bubbles
}
