package port_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/go-iventy"
	"github.com/stateforward/go-iventy/designator"
	"github.com/stateforward/go-iventy/kinds"
	"github.com/stateforward/go-iventy/pkg/tests"
	"github.com/stateforward/go-iventy/port"
)

type sink struct {
	messages []port.Message
	err      error
}

func (sink *sink) Send(message port.Message) error {
	if sink.err != nil {
		return sink.err
	}
	sink.messages = append(sink.messages, message)
	return nil
}

// pipe delivers straight into another port.
type pipe struct {
	remote *port.Port
}

func (pipe *pipe) Send(message port.Message) error {
	return pipe.remote.ConsumeMessage(message)
}

func TestConsume(t *testing.T) {
	t.Run("bubbles into targets with their tags", func(t *testing.T) {
		recorder := &tests.Recorder{}
		first, second := iventy.New(), iventy.New()
		first.Handle("order", recorder.Func("first"))
		second.Handle("order", recorder.Func("second"))
		p := port.New().BubbleTo(first, "remote").BubbleTo(second, "a", "b")

		stamp := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
		raw := []byte(`{"id":"abc","kind":2,"type":"order.created","data":{"total":42},"time":"2024-03-04T05:06:07Z"}`)
		require.NoError(t, p.Consume(raw))

		require.Equal(t, []string{"first", "second"}, recorder.Names())
		event := recorder.Last("first")
		assert.True(t, event.Designator().Equals(designator.MustParse("order.created.remote")))
		assert.Equal(t, "abc", event.Id())
		assert.Equal(t, kinds.Remote, event.Kind())
		assert.True(t, stamp.Equal(event.Time()))
		assert.Equal(t, []string{"created", "a", "b"}, recorder.Last("second").Tags())

		payload, err := port.Decode[struct {
			Total int `json:"total"`
		}](event)
		require.NoError(t, err)
		assert.Equal(t, 42, payload.Total)
	})

	t.Run("missing fields get defaults", func(t *testing.T) {
		recorder := &tests.Recorder{}
		emitter := iventy.New()
		emitter.Handle("ping", recorder.Func("ping"))
		require.NoError(t, port.New().BubbleTo(emitter).Consume([]byte(`{"type":"ping"}`)))
		event := recorder.Last("ping")
		require.NotNil(t, event)
		assert.NotEmpty(t, event.Id())
		assert.False(t, event.Time().IsZero())
		assert.Nil(t, event.Payload())
	})

	t.Run("invalid messages", func(t *testing.T) {
		p := port.New().BubbleTo(iventy.New())
		assert.ErrorIs(t, p.Consume([]byte(`not json`)), port.ErrInvalidMessage)
		assert.ErrorIs(t, p.Consume([]byte(`{"data":1}`)), port.ErrInvalidMessage)
		assert.ErrorIs(t, p.Consume([]byte(`{"type":"a..b"}`)), designator.ErrEmptyTag)
		err := p.ConsumeMessage(port.Message{Type: "a", Kind: kinds.Packet})
		assert.ErrorIs(t, err, port.ErrUnsupportedKind)
		assert.ErrorContains(t, err, "packet")
		assert.NoError(t, p.ConsumeMessage(port.Message{Type: "a", Kind: kinds.Remote}))
	})

	t.Run("no targets", func(t *testing.T) {
		assert.NoError(t, port.New().Consume([]byte(`{"type":"lost"}`)))
	})

	t.Run("nested consumption waits for the current message", func(t *testing.T) {
		recorder := &tests.Recorder{}
		emitter := iventy.New()
		p := port.New().BubbleTo(emitter)
		emitter.Handle("first", recorder.Func("first", func(event *iventy.Event) {
			require.NoError(t, p.ConsumeMessage(port.Message{Type: "second"}))
			recorder.Record("first done", event)
		}))
		emitter.Handle("second", recorder.Func("second"))

		require.NoError(t, p.ConsumeMessage(port.Message{Type: "first"}))
		assert.Equal(t, []string{"first", "first done", "second"}, recorder.Names())
	})
}

func TestConsumeAfterPanic(t *testing.T) {
	recorder := &tests.Recorder{}
	emitter := iventy.New()
	p := port.New().BubbleTo(emitter)
	emitter.Handle("a", recorder.Func("a", func(event *iventy.Event) {
		require.NoError(t, p.ConsumeMessage(port.Message{Type: "stale"}))
		panic("boom")
	}))
	emitter.Handle("stale", recorder.Func("stale"))
	emitter.Handle("b", recorder.Func("b"))

	assert.PanicsWithValue(t, "boom", func() {
		_ = p.ConsumeMessage(port.Message{Type: "a"})
	})
	require.NoError(t, p.ConsumeMessage(port.Message{Type: "b"}))
	assert.Equal(t, []string{"a", "b"}, recorder.Names())

	require.NoError(t, p.ConsumeMessage(port.Message{Type: "stale"}))
	assert.Equal(t, []string{"a", "b", "stale"}, recorder.Names())
}

func TestEncode(t *testing.T) {
	t.Run("marshals the payload", func(t *testing.T) {
		event, err := iventy.NewEvent("order.created", map[string]int{"total": 42})
		require.NoError(t, err)
		message, err := port.Encode(event)
		require.NoError(t, err)
		assert.Equal(t, event.Id(), message.Id)
		assert.Equal(t, kinds.Event, message.Kind)
		assert.Equal(t, "order.created", message.Type)
		assert.JSONEq(t, `{"total":42}`, string(message.Data))
		assert.Equal(t, event.Time(), message.Time)
	})

	t.Run("keeps raw payloads", func(t *testing.T) {
		event, err := iventy.NewEvent("a", json.RawMessage(`[1,2]`))
		require.NoError(t, err)
		message, err := port.Encode(event)
		require.NoError(t, err)
		assert.Equal(t, `[1,2]`, string(message.Data))
	})

	t.Run("no payload", func(t *testing.T) {
		message, err := port.Encode(mustEvent(t, "a"))
		require.NoError(t, err)
		assert.Nil(t, message.Data)
	})

	t.Run("unmarshalable payload", func(t *testing.T) {
		event, err := iventy.NewEvent("a", make(chan int))
		require.NoError(t, err)
		_, err = port.Encode(event)
		assert.Error(t, err)
	})
}

func TestDecode(t *testing.T) {
	event, err := iventy.NewEvent("a", 7)
	require.NoError(t, err)
	value, err := port.Decode[int](event)
	require.NoError(t, err)
	assert.Equal(t, 7, value)

	_, err = port.Decode[string](event)
	assert.Error(t, err)

	empty, err := port.Decode[string](mustEvent(t, "a"))
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	event, err = iventy.NewEvent("a", json.RawMessage(`"x"`))
	require.NoError(t, err)
	_, err = port.Decode[int](event)
	assert.Error(t, err)
}

func TestForward(t *testing.T) {
	t.Run("sends matching events", func(t *testing.T) {
		transport := &sink{}
		emitter := iventy.New()
		uninstall, err := port.New(port.Config{Transport: transport}).Forward(emitter, "order", "user.admin")
		require.NoError(t, err)

		_, err = emitter.Trigger("order.created", 1)
		require.NoError(t, err)
		_, err = emitter.Trigger("user", nil)
		require.NoError(t, err)
		_, err = emitter.Trigger("user.admin", nil)
		require.NoError(t, err)
		require.Len(t, transport.messages, 2)
		assert.Equal(t, "order.created", transport.messages[0].Type)
		assert.Equal(t, "user.admin", transport.messages[1].Type)

		uninstall()
		_, err = emitter.Trigger("order.created", 1)
		require.NoError(t, err)
		assert.Len(t, transport.messages, 2)
	})

	t.Run("remote events are not echoed", func(t *testing.T) {
		transport := &sink{}
		emitter := iventy.New()
		p := port.New(port.Config{Transport: transport}).BubbleTo(emitter)
		_, err := p.Forward(emitter, "order")
		require.NoError(t, err)
		require.NoError(t, p.ConsumeMessage(port.Message{Type: "order"}))
		assert.Empty(t, transport.messages)
	})

	t.Run("transport errors do not reach the emitter", func(t *testing.T) {
		emitter := iventy.New()
		_, err := port.New(port.Config{Transport: &sink{err: errors.New("closed")}}).Forward(emitter, "order")
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			_, err = emitter.Trigger("order", nil)
		})
		assert.NoError(t, err)
	})

	t.Run("requires a transport", func(t *testing.T) {
		_, err := port.New().Forward(iventy.New(), "order")
		assert.ErrorIs(t, err, port.ErrNoTransport)
		assert.ErrorIs(t, port.New().Send(mustEvent(t, "a")), port.ErrNoTransport)
	})

	t.Run("malformed name undoes earlier handlers", func(t *testing.T) {
		transport := &sink{}
		emitter := iventy.New()
		_, err := port.New(port.Config{Transport: transport}).Forward(emitter, "order", "")
		assert.ErrorIs(t, err, designator.ErrEmptyName)
		_, err = emitter.Trigger("order", nil)
		require.NoError(t, err)
		assert.Empty(t, transport.messages)
	})
}

func TestPipe(t *testing.T) {
	recorder := &tests.Recorder{}
	local, remote := iventy.New(), iventy.New()
	remote.Handle("chat.remote", recorder.Func("remote"))

	inbound := port.New().BubbleTo(remote, "remote")
	outbound := port.New(port.Config{Transport: &pipe{remote: inbound}})
	_, err := outbound.Forward(local, "chat")
	require.NoError(t, err)

	sent, err := local.Trigger("chat.hello", map[string]string{"text": "hi"})
	require.NoError(t, err)

	received := recorder.Last("remote")
	require.NotNil(t, received)
	assert.Equal(t, sent.Id(), received.Id())
	assert.Equal(t, []string{"hello", "remote"}, received.Tags())
	payload, err := port.Decode[map[string]string](received)
	require.NoError(t, err)
	assert.Equal(t, "hi", payload["text"])
}

func mustEvent(t *testing.T, name string) *iventy.Event {
	t.Helper()
	event, err := iventy.NewEvent(name, nil)
	require.NoError(t, err)
	return event
}
