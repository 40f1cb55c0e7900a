package bot

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cynwrig/synctube/internal/transport"
)

// Handler processes one inbound event. Returning true stops the rest of
// the handler chain for this trigger, which lets early handlers act as
// opt-out filters.
type Handler func(ctx context.Context, ev transport.Event) (bool, error)

// Noisy periodic events log at debug; everything else at info.
var eventLogLevel = map[string]zerolog.Level{
	"mediaUpdate":  zerolog.DebugLevel,
	"channelCSSJS": zerolog.DebugLevel,
	"emoteList":    zerolog.DebugLevel,
}

// Dispatcher maps event names to ordered handler lists.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	log      zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

func handlerID(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// On appends handlers for an event. Re-adding a handler already present
// is a logged no-op.
func (d *Dispatcher) On(event string, handlers ...Handler) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range handlers {
		if d.indexOf(event, h) >= 0 {
			d.log.Warn().Str("event", event).Msg("on: handler already registered")
			continue
		}
		d.handlers[event] = append(d.handlers[event], h)
	}
	return d
}

// Off removes handlers for an event, logging any that were not found.
func (d *Dispatcher) Off(event string, handlers ...Handler) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range handlers {
		i := d.indexOf(event, h)
		if i < 0 {
			d.log.Warn().Str("event", event).Msg("off: handler not found")
			continue
		}
		d.handlers[event] = append(d.handlers[event][:i], d.handlers[event][i+1:]...)
	}
	return d
}

func (d *Dispatcher) indexOf(event string, h Handler) int {
	id := handlerID(h)
	for i, existing := range d.handlers[event] {
		if handlerID(existing) == id {
			return i
		}
	}
	return -1
}

// ErrorEvent is the payload of the synthetic "error" event raised when a
// handler fails on a non-fatal error.
type ErrorEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// Trigger runs the handlers for an event in registration order, stopping
// when one returns true. Fatal signals (login failure, kick,
// cancellation) propagate; any other handler error aborts the rest of
// the chain for this trigger, is logged, and is re-dispatched once as a
// synthetic "error" event. A failure while already dispatching "error"
// is only logged, so error handling cannot recurse.
func (d *Dispatcher) Trigger(ctx context.Context, ev transport.Event) error {
	level, ok := eventLogLevel[ev.Name]
	if !ok {
		level = zerolog.InfoLevel
	}
	d.log.WithLevel(level).Str("event", ev.Name).RawJSON("data", nonEmpty(ev.Data)).Msg("trigger")

	d.mu.Lock()
	chain := make([]Handler, len(d.handlers[ev.Name]))
	copy(chain, d.handlers[ev.Name])
	d.mu.Unlock()

	for _, h := range chain {
		stop, err := h(ctx, ev)
		if err != nil {
			if isFatal(err) {
				return err
			}
			// The first fault aborts the rest of the chain for this
			// trigger call.
			d.log.Error().Err(err).Str("event", ev.Name).Msg("handler failed")
			if ev.Name == "error" {
				return nil
			}
			payload, merr := json.Marshal(ErrorEvent{
				Event: ev.Name,
				Data:  nonEmpty(ev.Data),
				Error: err.Error(),
			})
			if merr != nil {
				return nil
			}
			return d.Trigger(ctx, transport.Event{Name: "error", Data: payload})
		}
		if stop {
			break
		}
	}
	return nil
}

func nonEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}
