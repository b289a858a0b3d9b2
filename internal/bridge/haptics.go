package bridge

import (
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/protocol"
)

// LogHaptics is a Haptics for headless hosts: it only logs the pattern.
type LogHaptics struct {
	Logger *zap.Logger
}

func (h LogHaptics) Feedback(kind protocol.HapticKind) {
	if h.Logger != nil {
		h.Logger.Debug("haptic", zap.String("kind", string(kind)))
	}
}
