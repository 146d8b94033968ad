package network

import (
	"time"

	"github.com/automoto/doomerang-sync/shared/messages"
)

type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Channel identifies which socket delivered an event.
type Channel int

const (
	ChannelReliable Channel = iota
	ChannelUnreliable
)

func (c Channel) String() string {
	if c == ChannelUnreliable {
		return "unreliable"
	}
	return "reliable"
}

// Event is produced by the network goroutines and consumed by the game loop.
type Event struct {
	Kind     EventKind
	Channel  Channel
	Message  messages.Message // set for EventMessage
	Err      error            // set for EventDisconnected
	Received time.Time
}

// DrainEvents returns every event currently buffered on ch without blocking.
func DrainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
