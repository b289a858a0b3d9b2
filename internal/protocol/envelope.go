// Package protocol defines the message envelope exchanged between the host
// and sandboxed content surfaces, and the closed set of typed messages it is
// parsed into.
//
// The wire format is a JSON object:
//
//	{"version":"1.1","type":"GAMEPLAY","action":"STATE_UPDATE","payload":{...}}
//
// The version is advisory. Actions the host does not know decode to Unknown
// so newer content keeps working against an older host.
package protocol

import (
	"encoding/json"
	"errors"
)

// Version is the envelope version the host speaks.
const Version = "1.1"

// ErrMalformed reports an inbound frame that is not a usable envelope.
var ErrMalformed = errors.New("protocol: malformed envelope")

// Type is the coarse message category.
type Type string

const (
	TypeLifecycle Type = "LIFECYCLE"
	TypeGameplay  Type = "GAMEPLAY"
	TypeUX        Type = "UX"
	TypeApp       Type = "APP"
	TypeEvent     Type = "EVENT"
)

// Action names a message within its category.
type Action string

// Surface to host.
const (
	ActionHeartbeatReady Action = "HEARTBEAT_READY"
	ActionFlowStart      Action = "FLOW_START"
	ActionStateUpdate    Action = "STATE_UPDATE"
	ActionFlowComplete   Action = "FLOW_COMPLETE"
	ActionUXHaptic       Action = "UX_HAPTIC"
	ActionErrorReport    Action = "ERROR_REPORT"
)

// Host to surface.
const (
	ActionLifecycleResume Action = "LIFECYCLE_RESUME"
	ActionLifecyclePause  Action = "LIFECYCLE_PAUSE"
	ActionLifecycleStop   Action = "LIFECYCLE_STOP"
	ActionAppRestart      Action = "APP_RESTART"
	ActionAudioControl    Action = "AUDIO_CONTROL"
	ActionAppConfig       Action = "APP_CONFIG"
)

// legacyReadyType is an older ready signal that carried no action.
const legacyReadyType Type = "READY"

// Envelope is the wire frame.
type Envelope struct {
	Version string          `json:"version"`
	Type    Type            `json:"type"`
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
