package session

import "fmt"

// EventType is the kind of a session Event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDestroyed
	EventAttributeAdded
	EventAttributeReplaced
	EventAttributeRemoved
	EventPassivated
	EventActivated
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDestroyed:
		return "destroyed"
	case EventAttributeAdded:
		return "attribute_added"
	case EventAttributeReplaced:
		return "attribute_replaced"
	case EventAttributeRemoved:
		return "attribute_removed"
	case EventPassivated:
		return "passivated"
	case EventActivated:
		return "activated"
	default:
		return "unknown"
	}
}

// Cause tells why an Event happened.
type Cause uint8

const (
	CauseCreate     Cause = iota // a request created the session
	CauseModify                  // a request changed an attribute
	CauseInvalidate              // the session was invalidated
	CauseTimeout                 // the session was idle for too long
	CausePassivation             // the session was evicted from memory
	CauseActivation              // the session was loaded from the distributed store
)

func (c Cause) String() string {
	switch c {
	case CauseCreate:
		return "create"
	case CauseModify:
		return "modify"
	case CauseInvalidate:
		return "invalidate"
	case CauseTimeout:
		return "timeout"
	case CausePassivation:
		return "passivation"
	case CauseActivation:
		return "activation"
	default:
		return "unknown"
	}
}

// Event describes a change of a session.
// Local is false if the change was made by another node and only observed here.
type Event struct {
	Type     EventType
	Cause    Cause
	Local    bool
	RealID   string
	Name     string // attribute events only
	Value    any    // new value of added and replaced attributes
	OldValue any    // previous value of replaced and removed attributes
}

// Listener receives session events. It is called without any session lock held.
type Listener func(Event)

// NotificationPolicy decides which events reach the listeners.
type NotificationPolicy interface {
	Allowed(e Event) bool
}

// NotificationPolicyFunc adapts a function to NotificationPolicy.
type NotificationPolicyFunc func(Event) bool

func (f NotificationPolicyFunc) Allowed(e Event) bool { return f(e) }

var (
	// NotifyLocal passes events caused on this node.
	NotifyLocal NotificationPolicy = NotificationPolicyFunc(func(e Event) bool { return e.Local })
	// NotifyAll passes every event, including those observed from other nodes.
	NotifyAll NotificationPolicy = NotificationPolicyFunc(func(Event) bool { return true })
	// NotifyNone disables notifications.
	NotifyNone NotificationPolicy = NotificationPolicyFunc(func(Event) bool { return false })
)

// ParseNotificationPolicy parses "local", "all" or "none".
func ParseNotificationPolicy(s string) (NotificationPolicy, error) {
	switch s {
	case "local", "":
		return NotifyLocal, nil
	case "all":
		return NotifyAll, nil
	case "none":
		return NotifyNone, nil
	default:
		return nil, fmt.Errorf("unknown notification policy %q, must be local, all or none", s)
	}
}
