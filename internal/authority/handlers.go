package authority

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers serves the authority API.
type Handlers struct {
	repo     *Repository
	catalog  *Catalog
	pageSize int
	logger   *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(repo *Repository, catalog *Catalog, pageSize int, logger *zap.Logger) *Handlers {
	return &Handlers{repo: repo, catalog: catalog, pageSize: pageSize, logger: logger}
}

type saveRequest struct {
	UserID     string         `json:"user_uuid"`
	ContentID  string         `json:"game_uuid"`
	Level      int            `json:"level"`
	Score      int64          `json:"score"`
	BestScore  int64          `json:"best_score"`
	Sessions   int            `json:"sessions"`
	State      map[string]any `json:"state"`
	DurationMs int64          `json:"duration_ms"`
}

func (s saveRequest) submission() Submission {
	return Submission{
		ContentID:  s.ContentID,
		Level:      s.Level,
		Score:      s.Score,
		BestScore:  s.BestScore,
		Sessions:   s.Sessions,
		State:      s.State,
		DurationMs: s.DurationMs,
	}
}

type batchRequest struct {
	UserID   string        `json:"user_uuid"`
	Progress []saveRequest `json:"progress"`
}

type eventRequest struct {
	ContentID  string         `json:"game_uuid"`
	UserID     string         `json:"user_uuid"`
	Type       string         `json:"event_type"`
	DurationMs int64          `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata"`
}

type eventBatchRequest struct {
	Events []eventRequest `json:"events"`
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"status": "error", "message": msg})
}

// Health handles the health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "arcadia-authority",
		"games":   len(h.catalog.Games),
	})
}

// Feed lists catalog games by cursor.
func (h *Handlers) Feed(c *gin.Context) {
	games, next, err := h.catalog.Page(c.Query("cursor"), h.pageSize)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"data":        games,
			"next_cursor": next,
		},
	})
}

// GetProgress returns one user's record for a game.
func (h *Handlers) GetProgress(c *gin.Context) {
	userID := c.Query("user_uuid")
	if userID == "" {
		fail(c, http.StatusBadRequest, "user_uuid is required")
		return
	}
	p, _ := h.repo.Get(userID, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": p})
}

// SaveProgress applies one session.
func (h *Handlers) SaveProgress(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	if req.UserID == "" || req.ContentID == "" {
		fail(c, http.StatusBadRequest, "user_uuid and game_uuid are required")
		return
	}
	req.BestScore, req.Sessions = 0, 1
	p := h.repo.Apply(req.UserID, req.submission())
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"current_level": p.CurrentLevel,
			"high_score":    p.HighScore,
			"total_score":   p.TotalScore,
			"play_count":    p.PlayCount,
		},
	})
}

// SaveBatch applies grouped sessions and reports each item.
func (h *Handlers) SaveBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	if req.UserID == "" {
		fail(c, http.StatusBadRequest, "user_uuid is required")
		return
	}

	results := make([]gin.H, 0, len(req.Progress))
	for _, item := range req.Progress {
		if strings.TrimSpace(item.ContentID) == "" {
			results = append(results, gin.H{"game_uuid": item.ContentID, "status": "error", "message": "game_uuid is required"})
			continue
		}
		p := h.repo.Apply(req.UserID, item.submission())
		results = append(results, gin.H{"game_uuid": item.ContentID, "status": "success", "high_score": p.HighScore})
	}
	h.logger.Debug("batch saved", zap.String("user", req.UserID), zap.Int("items", len(results)))
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": results})
}

// TrackEvent records one event. Score updates answer with a percentile.
func (h *Handlers) TrackEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Type == "" {
		fail(c, http.StatusBadRequest, "invalid event")
		return
	}
	h.repo.CountEvent(req.Type)
	if req.Type != "score_update" {
		c.JSON(http.StatusOK, gin.H{"status": "logged"})
		return
	}

	score, ok := req.Metadata["score"].(float64)
	if !ok || score < 0 {
		fail(c, http.StatusBadRequest, "metadata.score is required")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "logged",
		"percentile": h.repo.RecordScore(req.ContentID, int64(score)),
	})
}

// TrackBatch records buffered events.
func (h *Handlers) TrackBatch(c *gin.Context) {
	var req eventBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	for _, ev := range req.Events {
		if ev.Type != "" {
			h.repo.CountEvent(ev.Type)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged", "count": len(req.Events)})
}
