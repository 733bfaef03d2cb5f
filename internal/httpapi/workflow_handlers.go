package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/septivank/smart-copro/internal/service"
)

// handleSubmitComplaint files a complaint for the calling resident
// POST /api/v1/complaints
func (s *Server) handleSubmitComplaint(c *gin.Context) {
	var in service.ComplaintInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	complaint, err := s.svc.Complaints.Submit(ctx, actorFrom(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, complaint)
}

func (s *Server) handleListComplaints(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	complaints, err := s.svc.Complaints.List(ctx, actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": complaints, "meta": gin.H{"count": len(complaints)}})
}

func (s *Server) handleGetComplaint(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	complaint, err := s.svc.Complaints.Get(ctx, actorFrom(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

// handleUpdateComplaint applies a manager's status or priority edit
// PATCH /api/v1/complaints/:id
func (s *Server) handleUpdateComplaint(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var patch service.ComplaintPatch
	if err := bindJSON(c, &patch); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	complaint, err := s.svc.Complaints.Update(ctx, actorFrom(c), id, patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

// handleAssignIntervention creates the intervention of a complaint
// POST /api/v1/interventions
func (s *Server) handleAssignIntervention(c *gin.Context) {
	var in service.AssignInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	intervention, err := s.svc.Dispatch.Assign(ctx, actorFrom(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, intervention)
}

func (s *Server) handleListInterventions(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	interventions, err := s.svc.Dispatch.List(ctx, actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": interventions, "meta": gin.H{"count": len(interventions)}})
}

func (s *Server) handleReplaceIntervention(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var in service.InterventionInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	intervention, err := s.svc.Dispatch.Replace(ctx, actorFrom(c), id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intervention)
}

func (s *Server) handleDeleteIntervention(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.svc.Dispatch.Delete(ctx, actorFrom(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleReportIntervention records the assigned technician's report
// PATCH /api/v1/interventions/:id/report
func (s *Server) handleReportIntervention(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var in service.ReportInput
	if err := bindJSON(c, &in); err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := s.svc.Dispatch.Report(ctx, actorFrom(c), id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
