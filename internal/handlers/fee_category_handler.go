package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

type FeeCategoryHandler struct {
	categoryService *services.FeeCategoryService
}

func NewFeeCategoryHandler(categoryService *services.FeeCategoryService) *FeeCategoryHandler {
	return &FeeCategoryHandler{categoryService: categoryService}
}

type FeeCategoryRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	Description *string `json:"description"`
}

// @Summary List Fee Categories
// @Description Get a paginated list of fee categories
// @Tags Fee Categories
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param search_term query string false "Search by name"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-categories [get]
func (h *FeeCategoryHandler) Index(c *gin.Context) {
	query := listQuery(c)
	categories, total, err := h.categoryService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, "fee_categories.list", err)
		return
	}
	respondList(c, categories, total, query)
}

// @Summary Get Fee Category
// @Tags Fee Categories
// @Produce json
// @Param id path int true "Fee Category ID"
// @Success 200 {object} models.FeeCategory
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-categories/{id} [get]
func (h *FeeCategoryHandler) Show(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	category, err := h.categoryService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, "fee_categories.show", err)
		return
	}
	respond(c, http.StatusOK, category, "")
}

// @Summary Create Fee Category
// @Description Names are unique, case-insensitively, among live categories
// @Tags Fee Categories
// @Accept json
// @Produce json
// @Param request body FeeCategoryRequest true "Category"
// @Success 201 {object} models.FeeCategory
// @Failure 400 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-categories [post]
func (h *FeeCategoryHandler) Create(c *gin.Context) {
	var req FeeCategoryRequest
	if err := BindNestedOrFlat(c, "fee_category", &req); err != nil {
		respondBindError(c, err)
		return
	}

	category, err := h.categoryService.Create(c.Request.Context(), services.CategoryInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, "fee_categories.create", err)
		return
	}
	respond(c, http.StatusCreated, category, "Fee category created")
}

// @Summary Update Fee Category
// @Tags Fee Categories
// @Accept json
// @Produce json
// @Param id path int true "Fee Category ID"
// @Param request body FeeCategoryRequest true "Category"
// @Success 200 {object} models.FeeCategory
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-categories/{id} [put]
func (h *FeeCategoryHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req FeeCategoryRequest
	if err := BindNestedOrFlat(c, "fee_category", &req); err != nil {
		respondBindError(c, err)
		return
	}

	category, err := h.categoryService.Update(c.Request.Context(), id, services.CategoryInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, "fee_categories.update", err)
		return
	}
	respond(c, http.StatusOK, category, "Fee category updated")
}

// @Summary Delete Fee Category
// @Description Categories still used by fee structures are soft-deleted, unused ones are removed
// @Tags Fee Categories
// @Produce json
// @Param id path int true "Fee Category ID"
// @Success 200 {object} services.CategoryDeleteResult
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-categories/{id} [delete]
func (h *FeeCategoryHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.categoryService.Delete(auditContext(c), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, "fee_categories.delete", err)
		return
	}
	respond(c, http.StatusOK, result, "Fee category deleted")
}
