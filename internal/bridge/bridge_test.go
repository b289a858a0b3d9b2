package bridge

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/monitoring"
	"github.com/Kh3rwa1/ArcadiaApp/internal/protocol"
	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
)

type recordingEndpoint struct {
	frames [][]byte
	full   bool
}

func (e *recordingEndpoint) Deliver(raw []byte) bool {
	if e.full {
		return false
	}
	e.frames = append(e.frames, raw)
	return true
}

type mockLifecycle struct{ mock.Mock }

func (m *mockLifecycle) SurfaceReady(card Card, ready protocol.Ready) { m.Called(card, ready) }
func (m *mockLifecycle) FlowStarted(card Card)                        { m.Called(card) }

type mockTelemetry struct{ mock.Mock }

func (m *mockTelemetry) StateUpdated(card Card, u protocol.StateUpdate)    { m.Called(card, u) }
func (m *mockTelemetry) FlowCompleted(card Card, c protocol.FlowComplete) { m.Called(card, c) }

type mockHaptics struct{ mock.Mock }

func (m *mockHaptics) Feedback(kind protocol.HapticKind) { m.Called(kind) }

func setup(t *testing.T) (*Bridge, Card, *recordingEndpoint, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	b := New(nil, metrics)
	card := Card{ID: id.NewGenerator().NewCardID(), ContentID: "game-1", Index: 0}
	ep := &recordingEndpoint{}
	b.Attach(card, ep)
	return b, card, ep, metrics
}

func TestSendEncodesCommand(t *testing.T) {
	b, card, ep, metrics := setup(t)

	require.True(t, b.Send(card.ID, protocol.Pause()))
	require.Len(t, ep.frames, 1)
	assert.JSONEq(t, `{"version":"1.1","type":"LIFECYCLE","action":"LIFECYCLE_PAUSE"}`, string(ep.frames[0]))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BridgeMessages.WithLabelValues("out", "LIFECYCLE_PAUSE")))
}

func TestSendToDetachedCardIsNoop(t *testing.T) {
	b, card, ep, _ := setup(t)
	b.Detach(card.ID)

	assert.NotPanics(t, func() {
		assert.False(t, b.Send(card.ID, protocol.Resume()))
	})
	assert.Empty(t, ep.frames)
	assert.False(t, b.Send("card_never_attached", protocol.Stop()))
}

func TestSendToBusySurface(t *testing.T) {
	b, card, ep, metrics := setup(t)
	ep.full = true

	assert.False(t, b.Send(card.ID, protocol.Resume()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BridgeDropped.WithLabelValues("surface_busy")))
}

func TestReceiveDispatch(t *testing.T) {
	b, card, _, _ := setup(t)
	lc := &mockLifecycle{}
	tel := &mockTelemetry{}
	hap := &mockHaptics{}
	b.Handle(Handlers{Lifecycle: lc, Telemetry: tel, Haptics: hap})

	lc.On("SurfaceReady", card, protocol.Ready{Kind: "game", Engine: "canvas"}).Once()
	lc.On("FlowStarted", card).Once()
	tel.On("StateUpdated", card, protocol.StateUpdate{Key: "score", Level: 2, Score: 10}).Once()
	tel.On("FlowCompleted", card, mock.MatchedBy(func(c protocol.FlowComplete) bool {
		return c.Score == 50 && c.DurationMs == 1200
	})).Once()
	hap.On("Feedback", protocol.HapticImpactLight).Once()
	hap.On("Feedback", protocol.HapticSelection).Once()

	frames := []string{
		`{"version":"1.1","type":"LIFECYCLE","action":"HEARTBEAT_READY","payload":{"type":"game","engine":"canvas"}}`,
		`{"version":"1.1","type":"GAMEPLAY","action":"FLOW_START","payload":{}}`,
		`{"version":"1.1","type":"GAMEPLAY","action":"STATE_UPDATE","payload":{"key":"score","score":10,"level":2}}`,
		`{"version":"1.1","type":"GAMEPLAY","action":"FLOW_COMPLETE","payload":{"score":50,"duration_ms":1200}}`,
		`{"version":"1.1","type":"UX","action":"UX_HAPTIC","payload":{"type":"impactLight"}}`,
		`{"version":"1.1","type":"UX","action":"UX_HAPTIC","payload":{"type":"rumble"}}`,
	}
	for _, f := range frames {
		require.NotNil(t, b.Receive(card.ID, []byte(f)), f)
	}

	lc.AssertExpectations(t)
	tel.AssertExpectations(t)
	hap.AssertExpectations(t)
}

func TestReceiveDropsUntrustedInput(t *testing.T) {
	b, card, _, metrics := setup(t)
	tel := &mockTelemetry{}
	b.Handle(Handlers{Telemetry: tel})

	inputs := []string{"", "{", "null", `{"payload":{}}`, "\x00\xff"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			assert.Nil(t, b.Receive(card.ID, []byte(in)))
		})
	}

	assert.Equal(t, float64(len(inputs)), testutil.ToFloat64(metrics.BridgeDropped.WithLabelValues("malformed")))
	tel.AssertNotCalled(t, "StateUpdated", mock.Anything, mock.Anything)
}

func TestReceiveFromDetachedCard(t *testing.T) {
	b, card, _, metrics := setup(t)
	tel := &mockTelemetry{}
	b.Handle(Handlers{Telemetry: tel})
	b.Detach(card.ID)

	msg := b.Receive(card.ID, []byte(`{"action":"STATE_UPDATE","payload":{"key":"score","score":5}}`))
	assert.Nil(t, msg)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BridgeDropped.WithLabelValues("detached")))
	tel.AssertNotCalled(t, "StateUpdated", mock.Anything, mock.Anything)
}

func TestReceiveUnknownAndErrorReport(t *testing.T) {
	b, card, _, _ := setup(t)

	msg := b.Receive(card.ID, []byte(`{"type":"APP","action":"APP_CONFIG_UPDATE"}`))
	assert.Equal(t, protocol.Unknown{Type: protocol.TypeApp, Name: "APP_CONFIG_UPDATE"}, msg)

	msg = b.Receive(card.ID, []byte(`{"type":"EVENT","action":"ERROR_REPORT","payload":{"message":"<script>x</script>bad"}}`))
	assert.Equal(t, protocol.ErrorReport{Message: "<script>x</script>bad"}, msg)
}

func TestSanitize(t *testing.T) {
	b := New(nil, nil)

	assert.Equal(t, "bad", b.sanitize("<b>bad</b>"))
	long := b.sanitize(strings.Repeat("a", 2000))
	assert.Equal(t, maxErrorReportRunes+1, len([]rune(long)))
}

func TestNilHandlersDropSilently(t *testing.T) {
	b, card, _, _ := setup(t)
	assert.NotPanics(t, func() {
		b.Receive(card.ID, []byte(`{"action":"FLOW_COMPLETE","payload":{"score":1}}`))
		b.Receive(card.ID, []byte(`{"action":"UX_HAPTIC","payload":{"type":"impactLight"}}`))
	})
	assert.Equal(t, 1, b.Len())
}
