package session

// EventKind tags an engine event.
type EventKind int

const (
	EventToken EventKind = iota
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of the stream an engine handle emits for a prompt.
// Text is set for EventToken, Err for EventError.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

func TokenEvent(text string) Event { return Event{Kind: EventToken, Text: text} }

func DoneEvent() Event { return Event{Kind: EventDone} }

func ErrorEvent(err error) Event { return Event{Kind: EventError, Err: err} }

// taggedEvent binds an engine event to the generation that submitted it.
type taggedEvent struct {
	gen uint64
	ev  Event
}
