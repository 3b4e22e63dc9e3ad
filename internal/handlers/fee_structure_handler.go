package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

const dateLayout = "2006-01-02"

type FeeStructureHandler struct {
	structureService *services.FeeStructureService
}

func NewFeeStructureHandler(structureService *services.FeeStructureService) *FeeStructureHandler {
	return &FeeStructureHandler{structureService: structureService}
}

// FeeStructureRequest creates or replaces a fee structure. A null or absent
// grade_id makes the structure global to its academic year.
type FeeStructureRequest struct {
	AcademicYearID      uint             `json:"academic_year_id" binding:"required"`
	GradeID             *uint            `json:"grade_id"`
	FeeCategoryID       uint             `json:"fee_category_id" binding:"required"`
	Amount              *decimal.Decimal `json:"amount" binding:"required"`
	IsMandatory         *bool            `json:"is_mandatory"`
	DueDate             *string          `json:"due_date"`
	InstallmentsAllowed bool             `json:"installments_allowed"`
	MaxInstallments     int              `json:"max_installments" binding:"gte=0"`
	LateFeeAmount       *decimal.Decimal `json:"late_fee_amount"`
	LateFeeDays         int              `json:"late_fee_days" binding:"gte=0"`
	IsActive            *bool            `json:"is_active"`
	Description         *string          `json:"description"`
}

func (r *FeeStructureRequest) toInput() (services.StructureInput, map[string]string) {
	in := services.StructureInput{
		AcademicYearID:      r.AcademicYearID,
		GradeID:             r.GradeID,
		FeeCategoryID:       r.FeeCategoryID,
		Amount:              *r.Amount,
		IsMandatory:         true,
		InstallmentsAllowed: r.InstallmentsAllowed,
		MaxInstallments:     r.MaxInstallments,
		LateFeeAmount:       decimal.Zero,
		LateFeeDays:         r.LateFeeDays,
		IsActive:            r.IsActive,
		Description:         r.Description,
	}
	if r.GradeID != nil && *r.GradeID == 0 {
		in.GradeID = nil
	}
	if r.IsMandatory != nil {
		in.IsMandatory = *r.IsMandatory
	}
	if r.LateFeeAmount != nil {
		in.LateFeeAmount = *r.LateFeeAmount
	}
	if r.DueDate != nil && *r.DueDate != "" {
		due, err := time.Parse(dateLayout, *r.DueDate)
		if err != nil {
			return in, map[string]string{"due_date": "must be a date in YYYY-MM-DD format"}
		}
		in.DueDate = &due
	}
	return in, nil
}

func (h *FeeStructureHandler) bind(c *gin.Context) (services.StructureInput, bool) {
	var req FeeStructureRequest
	if err := BindNestedOrFlat(c, "fee_structure", &req); err != nil {
		respondBindError(c, err)
		return services.StructureInput{}, false
	}
	in, fields := req.toInput()
	if fields != nil {
		respondFail(c, http.StatusBadRequest, "Validation failed", fields)
		return in, false
	}
	return in, true
}

func structureResponses(structures []models.FeeStructure) []models.FeeStructureResponse {
	responses := make([]models.FeeStructureResponse, 0, len(structures))
	for i := range structures {
		responses = append(responses, structures[i].ToResponse())
	}
	return responses
}

// @Summary List Fee Structures
// @Description Filter by academic year, grade reach, category, mandatory and active flags
// @Tags Fee Structures
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param academic_year_id query int false "Academic year"
// @Param grade_id query int false "Structures reaching this grade (its own and global)"
// @Param scope query string false "global or grade"
// @Param fee_category_id query int false "Fee category"
// @Param is_mandatory query bool false "Mandatory only / optional only"
// @Param is_active query bool false "Active flag"
// @Param include_direct query bool false "Include structures synthesized for direct payments"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-structures [get]
func (h *FeeStructureHandler) Index(c *gin.Context) {
	list := listQuery(c)
	query := &repository.StructureQuery{
		ListQuery:      list,
		AcademicYearID: queryID(c, "academic_year_id"),
		GradeID:        queryID(c, "grade_id"),
		FeeCategoryID:  queryID(c, "fee_category_id"),
		IsMandatory:    queryBool(c, "is_mandatory"),
		IsActive:       queryBool(c, "is_active"),
	}
	if includeDirect := queryBool(c, "include_direct"); includeDirect != nil {
		query.IncludeDirect = *includeDirect
	}
	switch c.Query("scope") {
	case "global":
		scope := models.GlobalScope()
		query.Scope = &scope
	case "grade":
		if query.GradeID != 0 {
			scope := models.GradeScope(query.GradeID)
			query.Scope = &scope
			query.GradeID = 0
		}
	}

	structures, total, err := h.structureService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, "fee_structures.list", err)
		return
	}
	respondList(c, structureResponses(structures), total, list)
}

// @Summary Get Fee Structure
// @Tags Fee Structures
// @Produce json
// @Param id path int true "Fee Structure ID"
// @Success 200 {object} models.FeeStructureResponse
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-structures/{id} [get]
func (h *FeeStructureHandler) Show(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	structure, err := h.structureService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, "fee_structures.show", err)
		return
	}
	respond(c, http.StatusOK, structure.ToResponse(), "")
}

// @Summary Create Fee Structure
// @Description One live structure per academic year, scope and category. A global mandatory structure is assigned to every active student of its year immediately.
// @Tags Fee Structures
// @Accept json
// @Produce json
// @Param request body FeeStructureRequest true "Fee Structure"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-structures [post]
func (h *FeeStructureHandler) Create(c *gin.Context) {
	in, ok := h.bind(c)
	if !ok {
		return
	}

	result, err := h.structureService.Create(auditContext(c), in, middleware.GetUserID(c))
	if err != nil {
		respondError(c, "fee_structures.create", err)
		return
	}

	message := "Fee structure created"
	if result.AssignmentsCreated > 0 {
		message = "Fee structure created and assigned to " + strconv.FormatInt(result.AssignmentsCreated, 10) + " students"
	}
	respond(c, http.StatusCreated, gin.H{
		"fee_structure":       result.Structure.ToResponse(),
		"assignments_created": result.AssignmentsCreated,
	}, message)
}

// @Summary Update Fee Structure
// @Description Existing student assignments keep the amount they were created with
// @Tags Fee Structures
// @Accept json
// @Produce json
// @Param id path int true "Fee Structure ID"
// @Param request body FeeStructureRequest true "Fee Structure"
// @Success 200 {object} models.FeeStructureResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-structures/{id} [put]
func (h *FeeStructureHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	in, ok := h.bind(c)
	if !ok {
		return
	}

	structure, err := h.structureService.Update(auditContext(c), id, in, middleware.GetUserID(c))
	if err != nil {
		respondError(c, "fee_structures.update", err)
		return
	}
	respond(c, http.StatusOK, structure.ToResponse(), "Fee structure updated")
}

// @Summary Delete Fee Structure
// @Description Refused while students hold active assignments unless force=true, which cancels them
// @Tags Fee Structures
// @Produce json
// @Param id path int true "Fee Structure ID"
// @Param force query bool false "Cancel active assignments and delete"
// @Success 200 {object} services.StructureDeleteResult
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-structures/{id} [delete]
func (h *FeeStructureHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	force := false
	if f := queryBool(c, "force"); f != nil {
		force = *f
	}

	result, err := h.structureService.Delete(auditContext(c), id, force, middleware.GetUserID(c))
	if err != nil {
		respondError(c, "fee_structures.delete", err)
		return
	}

	message := "Fee structure deleted"
	if result.CancelledAssignments > 0 {
		message = "Fee structure deleted and " + strconv.FormatInt(result.CancelledAssignments, 10) + " assignments cancelled"
	}
	respond(c, http.StatusOK, result, message)
}

// @Summary Back-fill Fee Structure
// @Description Assigns a mandatory structure to every active student it applies to who does not hold it yet
// @Tags Fee Structures
// @Produce json
// @Param id path int true "Fee Structure ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-structures/{id}/backfill [post]
func (h *FeeStructureHandler) Backfill(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	created, err := h.structureService.Backfill(auditContext(c), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, "fee_structures.backfill", err)
		return
	}
	respond(c, http.StatusOK, gin.H{"assignments_created": created}, "Back-fill completed")
}
