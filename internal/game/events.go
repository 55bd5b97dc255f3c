package game

// EventType names an event pushed to clients.
type EventType string

const (
	EventToast       EventType = "toast"
	EventQueueStatus EventType = "queue:status"
	EventMatchFound  EventType = "match:found"

	EventMatchTask      EventType = "match:task"      // task prompt, answer withheld
	EventMatchState     EventType = "match:state"     // running flag, countdown, player names
	EventMatchStarted   EventType = "match:started"   // both players attached
	EventMatchTick      EventType = "match:tick"      // countdown step
	EventMatchSubmitted EventType = "match:submitted" // someone submitted, correctness hidden
	EventMatchEnded     EventType = "match:ended"     // result, answers revealed

	EventTrainingOptions EventType = "training:options"
	EventTrainingTask    EventType = "training:task"
	EventTrainingTick    EventType = "training:tick"
	EventTrainingResult  EventType = "training:result"
)

// Event is the envelope written to a client.
type Event struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Handle is a live client connection. Send must not block.
type Handle interface {
	ID() string
	Send(ev Event)
}

// Toast severities.
const (
	ToastDanger  = "danger"
	ToastWarning = "warning"
	ToastInfo    = "info"
)

// Toast builds a user-facing notice.
func Toast(kind, text string) Event {
	return Event{Type: EventToast, Payload: map[string]interface{}{"type": kind, "text": text}}
}

func sendTo(h Handle, ev Event) {
	if h != nil {
		h.Send(ev)
	}
}
