package protocol

import "encoding/json"

// Message is an inbound surface message. The set of implementations is
// closed; anything unrecognised is an Unknown.
type Message interface {
	Action() Action
	isMessage()
}

// Ready signals the surface finished loading and installed its listeners.
type Ready struct {
	Kind     string
	Engine   string
	HasState bool
}

// FlowStart signals the user began interacting.
type FlowStart struct{}

// StateUpdate is a non-final progress report.
type StateUpdate struct {
	Key   string
	Level int
	Score int64
	State map[string]any
}

// Persistent reports whether the update carries progress worth recording.
func (u StateUpdate) Persistent() bool {
	switch u.Key {
	case "score", "level", "gameState":
		return true
	}
	return false
}

// FlowComplete is a final session report.
type FlowComplete struct {
	Level      int
	Score      int64
	State      map[string]any
	DurationMs int64
	Status     string
	// Fields is the decoded payload, forwarded as analytics metadata.
	Fields map[string]any
}

// HapticKind is a requested feedback pattern.
type HapticKind string

const (
	HapticImpactLight         HapticKind = "impactLight"
	HapticImpactMedium        HapticKind = "impactMedium"
	HapticImpactHeavy         HapticKind = "impactHeavy"
	HapticNotificationSuccess HapticKind = "notificationSuccess"
	HapticNotificationWarning HapticKind = "notificationWarning"
	HapticNotificationError   HapticKind = "notificationError"
	HapticSelection           HapticKind = "selection"
)

// Known reports whether k is one of the named patterns.
func (k HapticKind) Known() bool {
	switch k {
	case HapticImpactLight, HapticImpactMedium, HapticImpactHeavy,
		HapticNotificationSuccess, HapticNotificationWarning, HapticNotificationError,
		HapticSelection:
		return true
	}
	return false
}

// Haptic asks the host for physical feedback.
type Haptic struct {
	Kind HapticKind
}

// ErrorReport carries a surface-side error description, for logging only.
type ErrorReport struct {
	Message string
}

// Unknown is any message the host does not interpret.
type Unknown struct {
	Type    Type
	Name    Action
	Payload json.RawMessage
}

func (Ready) Action() Action        { return ActionHeartbeatReady }
func (FlowStart) Action() Action    { return ActionFlowStart }
func (StateUpdate) Action() Action  { return ActionStateUpdate }
func (FlowComplete) Action() Action { return ActionFlowComplete }
func (Haptic) Action() Action       { return ActionUXHaptic }
func (ErrorReport) Action() Action  { return ActionErrorReport }
func (u Unknown) Action() Action    { return u.Name }

func (Ready) isMessage()        {}
func (FlowStart) isMessage()    {}
func (StateUpdate) isMessage()  {}
func (FlowComplete) isMessage() {}
func (Haptic) isMessage()       {}
func (ErrorReport) isMessage()  {}
func (Unknown) isMessage()      {}
