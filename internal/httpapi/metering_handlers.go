package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/repository"
	"github.com/septivank/smart-copro/internal/service"
)

// handleCreateZone creates a common area
// POST /api/v1/zones
func (s *Server) handleCreateZone(c *gin.Context) {
	var in service.ZoneInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	zone, err := s.svc.Metering.CreateZone(ctx, actorFrom(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, zone)
}

// handleListZones returns every zone
// GET /api/v1/zones
func (s *Server) handleListZones(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	zones, err := s.svc.Metering.ListZones(ctx, actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": zones, "meta": gin.H{"count": len(zones)}})
}

// handleZoneConsumption aggregates the readings of a zone
// GET /api/v1/zones/:id/consumption?from=&to=
func (s *Server) handleZoneConsumption(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	consumption, err := s.svc.Reporting.ZoneConsumption(ctx, actorFrom(c), id, c.Query("from"), c.Query("to"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, consumption)
}

func (s *Server) handleCreateMeter(c *gin.Context) {
	var in service.MeterInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	meter, err := s.svc.Metering.CreateMeter(ctx, actorFrom(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, meter)
}

func (s *Server) handleListMeters(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	meters, err := s.svc.Metering.ListMeters(ctx, actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": meters, "meta": gin.H{"count": len(meters)}})
}

func (s *Server) handleGetMeter(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	meter, err := s.svc.Metering.GetMeter(ctx, actorFrom(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meter)
}

func (s *Server) handleUpdateMeter(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var patch service.MeterPatch
	if err := bindJSON(c, &patch); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	meter, err := s.svc.Metering.UpdateMeter(ctx, actorFrom(c), id, patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meter)
}

// handleSubmitReading records a manual reading and reports whether it raised
// an alert
// POST /api/v1/readings
func (s *Server) handleSubmitReading(c *gin.Context) {
	var in service.ReadingInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := s.svc.Metering.SubmitReading(ctx, actorFrom(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// handleListReadings returns readings newest first
// GET /api/v1/readings?meter=<reference>&zone_id=<id>&limit=<n>
func (s *Server) handleListReadings(c *gin.Context) {
	filter := repository.ReadingFilter{MeterReference: c.Query("meter")}
	if raw := c.Query("zone_id"); raw != "" {
		zoneID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || zoneID <= 0 {
			s.respondError(c, apperr.FieldValidation("zone_id", "must be a positive integer"))
			return
		}
		filter.ZoneID = zoneID
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.respondError(c, apperr.FieldValidation("limit", "must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	readings, err := s.svc.Metering.ListReadings(ctx, actorFrom(c), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": readings, "meta": gin.H{"count": len(readings)}})
}

func (s *Server) handleCorrectReading(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var in service.ReadingCorrection
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	reading, err := s.svc.Metering.CorrectReading(ctx, actorFrom(c), id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reading)
}
