package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobSvc *services.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobSvc,
	}
}

// Status returns the current worker status
// @Summary Get background job status
// @Description Get statistics about background jobs (active, completed, failed)
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /jobs/status [get]
func (h *JobHandler) Status(c *gin.Context) {
	respond(c, http.StatusOK, h.jobService.GetStatus(), "")
}

// OverdueSweep runs the overdue sweep immediately
// @Summary Run overdue sweep
// @Description Marks open assignments past their due date as overdue without waiting for the schedule
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /jobs/overdue_sweep [post]
func (h *JobHandler) OverdueSweep(c *gin.Context) {
	marked, err := h.jobService.SweepOverdue(c.Request.Context())
	if err != nil {
		respondError(c, "jobs.overdue_sweep", err)
		return
	}
	respond(c, http.StatusOK, gin.H{"marked_overdue": marked}, "Overdue sweep completed")
}
