package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/bytedance/sonic"
)

// maxScore keeps decoded numbers inside the range a float64 represents exactly.
const maxScore = 1 << 53

// Decode parses an inbound frame into a typed message. Frames that are not
// JSON objects, or that name no action, fail with ErrMalformed. A payload of
// the wrong shape is treated as empty rather than rejected.
func Decode(raw []byte) (Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrMalformed
	}

	var env Envelope
	if err := sonic.ConfigStd.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Action == "" {
		if env.Type == legacyReadyType {
			return Ready{}, nil
		}
		return nil, ErrMalformed
	}

	p := payloadFields(env.Payload)

	switch env.Action {
	case ActionHeartbeatReady:
		return Ready{
			Kind:     str(p["type"]),
			Engine:   str(p["engine"]),
			HasState: truthy(p["hasState"]),
		}, nil

	case ActionFlowStart:
		return FlowStart{}, nil

	case ActionStateUpdate:
		value := object(p["value"])
		score, ok := number(value["score"])
		if !ok {
			score, _ = number(p["score"])
		}
		return StateUpdate{
			Key:   str(p["key"]),
			Level: level(p["level"]),
			Score: clampScore(score),
			State: value,
		}, nil

	case ActionFlowComplete:
		lvl := level(p["level"])
		if _, ok := number(p["level"]); !ok {
			lvl = level(object(p["metadata"])["level"])
		}
		score, ok := number(p["score"])
		if !ok {
			score, _ = number(p["points"])
		}
		duration, _ := number(p["duration_ms"])
		return FlowComplete{
			Level:      lvl,
			Score:      clampScore(score),
			State:      object(p["state"]),
			DurationMs: clampScore(duration),
			Status:     str(p["status"]),
			Fields:     p,
		}, nil

	case ActionUXHaptic:
		return Haptic{Kind: HapticKind(str(p["type"]))}, nil

	case ActionErrorReport:
		return ErrorReport{Message: str(p["message"])}, nil
	}

	return Unknown{Type: env.Type, Name: env.Action, Payload: env.Payload}, nil
}

func payloadFields(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := sonic.ConfigStd.Unmarshal(raw, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// number returns a positive numeric field. Zero and absent values report
// false so callers can fall through to an alternative key.
func number(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || f == 0 {
		return 0, false
	}
	return f, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	}
	return true
}

func level(v any) int {
	f, ok := number(v)
	if !ok || f < 1 {
		return 1
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func clampScore(f float64) int64 {
	switch {
	case f <= 0:
		return 0
	case f > maxScore:
		return maxScore
	}
	return int64(f)
}
