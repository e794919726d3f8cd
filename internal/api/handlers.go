package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/events"
)

// handleHealth reports process liveness
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// handleStatus returns the engine's current status snapshot
func (s *Server) handleStatus(c *gin.Context) {
	status := s.engineAPI.Status()
	status["ws_clients"] = s.wsHub.GetClientCount()
	if s.thresholdState != nil {
		status["redis_available"] = s.thresholdState.IsRedisAvailable()
	}
	c.JSON(http.StatusOK, status)
}

// handleGetThresholds returns the adaptive threshold state for all classes
func (s *Server) handleGetThresholds(c *gin.Context) {
	snapshot := s.engineAPI.Thresholds().Snapshot()

	type classView struct {
		InstrumentClass string    `json:"instrument_class"`
		MinConfidence   float64   `json:"min_confidence"`
		OutcomeCount    int       `json:"outcome_count"`
		WinRate         float64   `json:"win_rate"`
		UpdatedAt       time.Time `json:"updated_at"`
	}

	views := make([]classView, 0, len(snapshot))
	for _, state := range snapshot {
		wins := 0
		for _, o := range state.Outcomes {
			if o.Win {
				wins++
			}
		}
		winRate := 0.0
		if len(state.Outcomes) > 0 {
			winRate = float64(wins) / float64(len(state.Outcomes))
		}
		views = append(views, classView{
			InstrumentClass: string(state.Class),
			MinConfidence:   state.MinConfidence,
			OutcomeCount:    len(state.Outcomes),
			WinRate:         winRate,
			UpdatedAt:       state.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"thresholds": views})
}

// handleResetThreshold resets one class back to its configured default
func (s *Server) handleResetThreshold(c *gin.Context) {
	class := engine.InstrumentClass(c.Param("class"))
	if class != engine.ClassLowVol && class != engine.ClassHighVol {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown instrument class: " + c.Param("class"),
		})
		return
	}

	s.engineAPI.Thresholds().Reset(class)
	s.logger.Info().Str("class", string(class)).Msg("Threshold reset via API")
	s.eventBus.Publish(events.Event{
		Type: events.EventThresholdReset,
		Data: map[string]interface{}{
			"instrument_class": string(class),
			"min_confidence":   s.engineAPI.Thresholds().Current(class),
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"instrument_class": string(class),
		"min_confidence":   s.engineAPI.Thresholds().Current(class),
	})
}

// handleRecentDecisions returns the latest journaled decisions
func (s *Server) handleRecentDecisions(c *gin.Context) {
	if s.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision journal disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	decisions, err := s.decisions.GetRecentDecisions(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load recent decisions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load decisions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"decisions": decisions, "count": len(decisions)})
}

// handleInstrumentDecisions returns journaled decisions for one instrument
func (s *Server) handleInstrumentDecisions(c *gin.Context) {
	if s.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision journal disabled"})
		return
	}

	instrument := c.Param("instrument")

	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 24*30 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be between 1 and 720"})
			return
		}
		hours = parsed
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	decisions, err := s.decisions.GetDecisionsByInstrument(c.Request.Context(), instrument, since)
	if err != nil {
		s.logger.Error().Err(err).Str("instrument", instrument).Msg("Failed to load instrument decisions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load decisions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"instrument": instrument,
		"since":      since,
		"decisions":  decisions,
		"count":      len(decisions),
	})
}

// handleDecisionStats aggregates journaled decisions by action
func (s *Server) handleDecisionStats(c *gin.Context) {
	if s.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision journal disabled"})
		return
	}

	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 24*30 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be between 1 and 720"})
			return
		}
		hours = parsed
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.decisions.GetActionStats(c.Request.Context(), since)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load decision stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"since": since, "stats": stats})
}
