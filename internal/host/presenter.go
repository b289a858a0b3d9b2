package host

import (
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/bridge"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/feed"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/progress"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/telemetry"
	"github.com/Kh3rwa1/ArcadiaApp/internal/protocol"
)

// Presenter is everything a host shows to the user.
type Presenter interface {
	feed.Presenter
	telemetry.Presenter
}

// LogPresenter renders presentation events as log lines, for headless
// hosts.
type LogPresenter struct {
	Logger *zap.Logger
}

var _ Presenter = LogPresenter{}

func (p LogPresenter) SetLoading(card bridge.Card, loading bool) {
	p.Logger.Debug("loading", cardFields(card, zap.Bool("loading", loading))...)
}

func (p LogPresenter) ShowError(card bridge.Card, err error) {
	p.Logger.Warn("content unavailable", cardFields(card, zap.Error(err))...)
}

func (p LogPresenter) SetPlaying(card bridge.Card, playing bool) {
	p.Logger.Debug("playing", cardFields(card, zap.Bool("playing", playing))...)
}

func (p LogPresenter) Settled(index int, item feed.Item) {
	p.Logger.Info("now showing",
		zap.Int("index", index),
		zap.String("content_id", item.ID),
		zap.String("title", item.Title),
		zap.String("category", item.Category))
}

func (p LogPresenter) ShowScore(card bridge.Card, score int64) {
	p.Logger.Debug("score", cardFields(card, zap.Int64("score", score))...)
}

func (p LogPresenter) ShowResults(card bridge.Card, c protocol.FlowComplete, rec progress.Record) {
	p.Logger.Info("round complete", cardFields(card,
		zap.Int64("score", c.Score),
		zap.Int("level", c.Level),
		zap.Int64("high_score", rec.HighScore),
		zap.Int64("plays", rec.PlayCount))...)
}

func (p LogPresenter) ShowPercentile(card bridge.Card, percentile int) {
	p.Logger.Info("percentile", cardFields(card, zap.Int("percentile", percentile))...)
}

func cardFields(card bridge.Card, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("card_id", card.ID.String()),
		zap.String("content_id", card.ContentID),
	}, extra...)
}
