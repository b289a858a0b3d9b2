package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Command is a host to surface instruction.
type Command struct {
	Action  Action
	Payload any
}

// AudioSettings is the AUDIO_CONTROL payload.
type AudioSettings struct {
	Muted  bool    `json:"muted"`
	Volume float64 `json:"volume"`
}

func Resume() Command  { return Command{Action: ActionLifecycleResume} }
func Pause() Command   { return Command{Action: ActionLifecyclePause} }
func Stop() Command    { return Command{Action: ActionLifecycleStop} }
func Restart() Command { return Command{Action: ActionAppRestart} }

// Audio builds an AUDIO_CONTROL command. Volume is clamped to [0, 1].
func Audio(muted bool, volume float64) Command {
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	return Command{Action: ActionAudioControl, Payload: AudioSettings{Muted: muted, Volume: volume}}
}

// Config carries the host configuration to surfaces that cannot have it
// injected before their content starts.
func Config(cfg map[string]any) Command {
	if cfg == nil {
		cfg = map[string]any{}
	}
	return Command{Action: ActionAppConfig, Payload: cfg}
}

// Type returns the envelope category for the command.
func (c Command) Type() Type {
	switch c.Action {
	case ActionAppRestart, ActionAudioControl, ActionAppConfig:
		return TypeApp
	}
	return TypeLifecycle
}

// Encode renders c as an envelope frame.
func Encode(c Command) ([]byte, error) {
	env := Envelope{Version: Version, Type: c.Type(), Action: c.Action}
	if c.Payload != nil {
		payload, err := sonic.Marshal(c.Payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s payload: %w", c.Action, err)
		}
		env.Payload = payload
	}
	return sonic.Marshal(env)
}

// DecodeCommand parses a host frame. Surfaces use it; the host never does.
func DecodeCommand(raw []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.ConfigStd.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Action == "" {
		return Envelope{}, ErrMalformed
	}
	return env, nil
}
