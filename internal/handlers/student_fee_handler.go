package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

// StudentFeeHandler exposes the assignment engine per student
type StudentFeeHandler struct {
	engine *services.AssignmentEngine
}

func NewStudentFeeHandler(engine *services.AssignmentEngine) *StudentFeeHandler {
	return &StudentFeeHandler{engine: engine}
}

type SelectOptionalFeesRequest struct {
	FeeStructureIDs []uint `json:"fee_structure_ids" binding:"required,min=1,dive,gt=0"`
}

// StudentSummary is the student part of a fee overview
type StudentSummary struct {
	ID             uint   `json:"id"`
	FullName       string `json:"full_name"`
	AdmissionNo    string `json:"admission_no"`
	GradeID        uint   `json:"grade_id"`
	AcademicYearID *uint  `json:"academic_year_id"`
}

// StudentFeesResponse is a student's obligations with totals
type StudentFeesResponse struct {
	Student      StudentSummary              `json:"student"`
	AcademicYear *models.AcademicYear        `json:"academic_year"`
	Assignments  []models.AssignmentResponse `json:"assignments"`
	Totals       services.FeeTotals          `json:"totals"`
}

func assignmentResponses(assignments []models.StudentFeeAssignment, now time.Time) []models.AssignmentResponse {
	responses := make([]models.AssignmentResponse, 0, len(assignments))
	for i := range assignments {
		responses = append(responses, assignments[i].ToResponse(now))
	}
	return responses
}

// studentID reads :student_id and, for parents, checks the student is theirs
func (h *StudentFeeHandler) studentID(c *gin.Context) (uint, bool) {
	id, ok := pathID(c, "student_id")
	if !ok {
		return 0, false
	}
	if middleware.IsParent(c) {
		if err := h.engine.EnsureParentAccess(c.Request.Context(), id, middleware.GetParentID(c)); err != nil {
			respondError(c, "student_fees.parent_access", err)
			return 0, false
		}
	}
	return id, true
}

// @Summary Student Fees
// @Description Active fee assignments of a student with totals and late fees due. Parents may only view their own children.
// @Tags Student Fees
// @Produce json
// @Param student_id path int true "Student ID"
// @Success 200 {object} StudentFeesResponse
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /students/{student_id}/fees [get]
func (h *StudentFeeHandler) Index(c *gin.Context) {
	id, ok := h.studentID(c)
	if !ok {
		return
	}

	overview, err := h.engine.StudentFees(c.Request.Context(), id)
	if err != nil {
		respondError(c, "student_fees.index", err)
		return
	}

	respond(c, http.StatusOK, StudentFeesResponse{
		Student: StudentSummary{
			ID:             overview.Student.ID,
			FullName:       overview.Student.FullName(),
			AdmissionNo:    overview.Student.AdmissionNo,
			GradeID:        overview.Student.GradeID,
			AcademicYearID: overview.Student.AcademicYearID,
		},
		AcademicYear: overview.AcademicYear,
		Assignments:  assignmentResponses(overview.Assignments, time.Now()),
		Totals:       overview.Totals,
	}, "")
}

// @Summary Assign Fees
// @Description Creates an assignment for every applicable mandatory fee structure the student does not hold yet. Safe to repeat.
// @Tags Student Fees
// @Produce json
// @Param student_id path int true "Student ID"
// @Success 200 {object} services.AssignResult
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /students/{student_id}/fees/assign [post]
func (h *StudentFeeHandler) Assign(c *gin.Context) {
	id, ok := pathID(c, "student_id")
	if !ok {
		return
	}

	result, err := h.engine.AssignForStudent(c.Request.Context(), id)
	if err != nil {
		respondError(c, "student_fees.assign", err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"academic_year_id": result.AcademicYearID,
		"created":          result.Created,
		"skipped":          result.Skipped,
		"assignments":      assignmentResponses(result.Assignments, time.Now()),
	}, "Fees assigned")
}

// @Summary Optional Fees
// @Description Applicable optional fee structures the student has not taken yet
// @Tags Student Fees
// @Produce json
// @Param student_id path int true "Student ID"
// @Param global_only query bool false "Only structures applying to all grades"
// @Param include_global query bool false "Include global structures" default(true)
// @Success 200 {array} models.FeeStructureResponse
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /students/{student_id}/fees/optional [get]
func (h *StudentFeeHandler) Optional(c *gin.Context) {
	id, ok := h.studentID(c)
	if !ok {
		return
	}

	filter := services.DefaultOptionalFilter()
	if v := queryBool(c, "global_only"); v != nil {
		filter.GlobalOnly = *v
	}
	if v := queryBool(c, "include_global"); v != nil {
		filter.IncludeGlobal = *v
	}

	structures, err := h.engine.OptionalFees(c.Request.Context(), id, filter)
	if err != nil {
		respondError(c, "student_fees.optional", err)
		return
	}
	respond(c, http.StatusOK, structureResponses(structures), "")
}

// @Summary Select Optional Fees
// @Description Takes up optional fee structures for a student. Already selected structures are skipped.
// @Tags Student Fees
// @Accept json
// @Produce json
// @Param student_id path int true "Student ID"
// @Param request body SelectOptionalFeesRequest true "Structures"
// @Success 200 {object} services.AssignResult
// @Failure 400 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Security BearerAuth
// @Router /students/{student_id}/fees/optional [post]
func (h *StudentFeeHandler) SelectOptional(c *gin.Context) {
	id, ok := h.studentID(c)
	if !ok {
		return
	}
	var req SelectOptionalFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.engine.SelectOptionalFees(c.Request.Context(), id, req.FeeStructureIDs)
	if err != nil {
		respondError(c, "student_fees.select_optional", err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"academic_year_id": result.AcademicYearID,
		"created":          result.Created,
		"skipped":          result.Skipped,
		"assignments":      assignmentResponses(result.Assignments, time.Now()),
	}, "Optional fees selected")
}

// @Summary Cancel Assignment
// @Description Cancels a pending, partial or overdue assignment. Paid assignments cannot be cancelled.
// @Tags Student Fees
// @Produce json
// @Param id path int true "Assignment ID"
// @Success 200 {object} models.AssignmentResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-assignments/{id}/cancel [post]
func (h *StudentFeeHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	assignment, err := h.engine.Cancel(auditContext(c), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, "fee_assignments.cancel", err)
		return
	}
	respond(c, http.StatusOK, assignment.ToResponse(time.Now()), "Assignment cancelled")
}
