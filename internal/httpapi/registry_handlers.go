package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/service"
)

func (s *Server) handleCreateThreshold(c *gin.Context) {
	var in service.ThresholdInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	threshold, err := s.svc.Thresholds.CreateThreshold(ctx, actorFrom(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, threshold)
}

func (s *Server) handleListThresholds(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	thresholds, err := s.svc.Thresholds.ListThresholds(ctx, actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": thresholds, "meta": gin.H{"count": len(thresholds)}})
}

func (s *Server) handleReplaceThreshold(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var in service.ThresholdInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	threshold, err := s.svc.Thresholds.ReplaceThreshold(ctx, actorFrom(c), id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, threshold)
}

func (s *Server) handleDeleteThreshold(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.svc.Thresholds.DeleteThreshold(ctx, actorFrom(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleListAlerts returns alerts newest first
// GET /api/v1/alerts?handled=false
func (s *Server) handleListAlerts(c *gin.Context) {
	var handled *bool
	if raw := c.Query("handled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(c, apperr.FieldValidation("handled", "must be true or false"))
			return
		}
		handled = &v
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	alerts, err := s.svc.Thresholds.ListAlerts(ctx, actorFrom(c), handled)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts, "meta": gin.H{"count": len(alerts)}})
}

func (s *Server) handleHandleAlert(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	alert, err := s.svc.Thresholds.HandleAlert(ctx, actorFrom(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// handleDashboard returns the aggregate snapshot
// GET /api/v1/dashboard?refresh=true
func (s *Server) handleDashboard(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	ctx, cancel := requestContext(c)
	defer cancel()

	snapshot, err := s.svc.Reporting.Dashboard(ctx, actorFrom(c), refresh)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
