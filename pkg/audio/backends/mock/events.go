package mock

import (
	"fmt"
	"sync"
)

type EventKind int

const (
	EventUndefined = EventKind(iota)
	EventOpen
	EventNegotiate
	EventFillBegin
	EventFillEnd
	EventWriteBegin
	EventWriteEnd
	EventRecover
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventUndefined:
		return "undefined"
	case EventOpen:
		return "open"
	case EventNegotiate:
		return "negotiate"
	case EventFillBegin:
		return "fill_begin"
	case EventFillEnd:
		return "fill_end"
	case EventWriteBegin:
		return "write_begin"
	case EventWriteEnd:
		return "write_end"
	case EventRecover:
		return "recover"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("unknown_event_%d", int(k))
	}
}

type Event struct {
	Kind    EventKind
	Samples int
	Err     error
}

// EventLog records the exact interleaving of device and callback activity.
type EventLog struct {
	locker sync.Mutex
	events []Event
}

func (l *EventLog) Add(ev Event) {
	l.locker.Lock()
	defer l.locker.Unlock()
	l.events = append(l.events, ev)
}

func (l *EventLog) Events() []Event {
	l.locker.Lock()
	defer l.locker.Unlock()
	result := make([]Event, len(l.events))
	copy(result, l.events)
	return result
}

func (l *EventLog) Count(kind EventKind) int {
	l.locker.Lock()
	defer l.locker.Unlock()
	count := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			count++
		}
	}
	return count
}

// IndexOf returns the position of the first event of the kind or -1.
func (l *EventLog) IndexOf(kind EventKind) int {
	l.locker.Lock()
	defer l.locker.Unlock()
	for idx, ev := range l.events {
		if ev.Kind == kind {
			return idx
		}
	}
	return -1
}
