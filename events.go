package talon

import (
	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/pair"
)

const (
	COLLISION_ENTER EventType = iota
	COLLISION_STAY
	COLLISION_EXIT
	ON_SLEEP
	ON_WAKE
)

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// Collision events carry the canonical pair order: statics second, lower
// handle first between bodies.
type CollisionEnterEvent struct {
	BodyA actor.Handle
	BodyB actor.Handle
}

func (e CollisionEnterEvent) Type() EventType { return COLLISION_ENTER }

type CollisionStayEvent struct {
	BodyA actor.Handle
	BodyB actor.Handle
}

func (e CollisionStayEvent) Type() EventType { return COLLISION_STAY }

type CollisionExitEvent struct {
	BodyA actor.Handle
	BodyB actor.Handle
}

func (e CollisionExitEvent) Type() EventType { return COLLISION_EXIT }

type SleepEvent struct {
	Body actor.Handle
}

func (e SleepEvent) Type() EventType { return ON_SLEEP }

type WakeEvent struct {
	Body actor.Handle
}

func (e WakeEvent) Type() EventType { return ON_WAKE }

// EventListener - callback for events
type EventListener func(event Event)

// Events derives enter/stay/exit from the pair cache's fresh/stale
// transitions: a pair recorded this frame that was absent before enters, a
// persisted pair stays, a pruned pair exits.
type Events struct {
	listeners map[EventType][]EventListener
	buffer    []Event

	activePairs map[pair.ID]bool
}

func NewEvents() Events {
	return Events{
		listeners:   make(map[EventType][]EventListener),
		buffer:      make([]Event, 0, 256),
		activePairs: make(map[pair.ID]bool),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

// recordVisited is called from the frame flush for every pair the narrow
// phase kept alive this frame.
func (e *Events) recordVisited(id pair.ID) {
	if e.activePairs[id] {
		e.buffer = append(e.buffer, CollisionStayEvent{
			BodyA: id.First().Handle(),
			BodyB: id.Second().Handle(),
		})
		return
	}
	e.activePairs[id] = true
	e.buffer = append(e.buffer, CollisionEnterEvent{
		BodyA: id.First().Handle(),
		BodyB: id.Second().Handle(),
	})
}

// recordRemoved is called for every pair pruned by the cache flush.
func (e *Events) recordRemoved(id pair.ID) {
	if !e.activePairs[id] {
		return
	}
	delete(e.activePairs, id)
	e.buffer = append(e.buffer, CollisionExitEvent{
		BodyA: id.First().Handle(),
		BodyB: id.Second().Handle(),
	})
}

func (e *Events) emitSleep(body actor.Handle) {
	e.buffer = append(e.buffer, SleepEvent{Body: body})
}

func (e *Events) emitWake(body actor.Handle) {
	e.buffer = append(e.buffer, WakeEvent{Body: body})
}

// flush sends all buffered events and clears the buffer
func (e *Events) flush() {
	for _, event := range e.buffer {
		if listeners, ok := e.listeners[event.Type()]; ok {
			for _, listener := range listeners {
				listener(event)
			}
		}
	}
	e.buffer = e.buffer[:0]
}
