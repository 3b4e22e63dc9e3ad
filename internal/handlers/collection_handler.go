package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

type CollectionHandler struct {
	collectionService *services.CollectionService
	receiptService    *services.ReceiptService
}

func NewCollectionHandler(collectionSvc *services.CollectionService, receiptSvc *services.ReceiptService) *CollectionHandler {
	return &CollectionHandler{
		collectionService: collectionSvc,
		receiptService:    receiptSvc,
	}
}

// CollectFeeRequest records a payment. Give exactly one of
// student_fee_assignment_id, is_direct_payment (with fee_category_id) or
// optional_fees.
type CollectFeeRequest struct {
	StudentID              uint             `json:"student_id" binding:"required"`
	Amount                 *decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod          string           `json:"payment_method" binding:"required,payment_method"`
	StudentFeeAssignmentID *uint            `json:"student_fee_assignment_id"`
	IsDirectPayment        bool             `json:"is_direct_payment"`
	FeeCategoryID          *uint            `json:"fee_category_id"`
	OptionalFees           []uint           `json:"optional_fees" binding:"omitempty,dive,gt=0"`
	ReferenceNumber        *string          `json:"reference_number" binding:"omitempty,max=100"`
	Remarks                *string          `json:"remarks" binding:"omitempty,max=500"`
	CollectionDate         *string          `json:"collection_date"`
	// CollectedBy lets an admin record a payment on behalf of a staff member
	CollectedBy *uint `json:"collected_by"`
}

func collectionResponses(collections []models.FeeCollection) []models.FeeCollectionResponse {
	responses := make([]models.FeeCollectionResponse, 0, len(collections))
	for i := range collections {
		responses = append(responses, collections[i].ToResponse())
	}
	return responses
}

// canSee lets staff reach only the collections they took
func canSee(c *gin.Context, collection *models.FeeCollection) bool {
	if middleware.IsAdmin(c) {
		return true
	}
	return collection.CollectedByStaffID == middleware.GetStaffID(c)
}

// @Summary Collect Fee
// @Description Records a payment against an assignment, as a direct payment for a category, or for a set of optional fees. The collecting staff wallet is credited in the same transaction.
// @Tags Fee Collections
// @Accept json
// @Produce json
// @Param request body CollectFeeRequest true "Payment"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-collections [post]
func (h *CollectionHandler) Create(c *gin.Context) {
	var req CollectFeeRequest
	if err := BindNestedOrFlat(c, "fee_collection", &req); err != nil {
		respondBindError(c, err)
		return
	}

	in := services.CollectInput{
		StudentID:              req.StudentID,
		Amount:                 *req.Amount,
		PaymentMethod:          req.PaymentMethod,
		StudentFeeAssignmentID: req.StudentFeeAssignmentID,
		IsDirectPayment:        req.IsDirectPayment,
		FeeCategoryID:          req.FeeCategoryID,
		OptionalFees:           req.OptionalFees,
		ReferenceNumber:        req.ReferenceNumber,
		Remarks:                req.Remarks,
		StaffID:                middleware.GetStaffID(c),
		ActorID:                middleware.GetUserID(c),
	}
	if middleware.IsAdmin(c) && req.CollectedBy != nil {
		in.StaffID = *req.CollectedBy
	}
	if req.CollectionDate != nil && *req.CollectionDate != "" {
		date, err := time.Parse(dateLayout, *req.CollectionDate)
		if err != nil {
			respondFail(c, http.StatusBadRequest, "Validation failed", map[string]string{
				"collection_date": "must be a date in YYYY-MM-DD format",
			})
			return
		}
		in.CollectionDate = &date
	}

	result, err := h.collectionService.Collect(auditContext(c), in)
	if err != nil {
		respondError(c, "fee_collections.create", err)
		return
	}

	receipts := make([]string, 0, len(result.Collections))
	for _, col := range result.Collections {
		receipts = append(receipts, col.ReceiptNumber)
	}
	respond(c, http.StatusCreated, gin.H{
		"mode":            result.Mode,
		"total_amount":    result.TotalAmount,
		"receipt_numbers": receipts,
		"collections":     collectionResponses(result.Collections),
		"assignments":     assignmentResponses(result.Assignments, time.Now()),
	}, fmt.Sprintf("Payment of %s recorded", result.TotalAmount.StringFixed(2)))
}

// @Summary List Fee Collections
// @Description Admins see every collection, staff only their own
// @Tags Fee Collections
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param search_term query string false "Receipt number, reference or student name"
// @Param student_id query int false "Student"
// @Param staff_id query int false "Collecting staff member (admin only)"
// @Param payment_method query string false "cash, card, online, cheque or dd"
// @Param verified query bool false "Verification status"
// @Param start_date query string false "From date (YYYY-MM-DD)"
// @Param end_date query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-collections [get]
func (h *CollectionHandler) Index(c *gin.Context) {
	list := listQuery(c)
	query := &repository.CollectionQuery{
		ListQuery:     list,
		StudentID:     queryID(c, "student_id"),
		StaffID:       queryID(c, "staff_id"),
		PaymentMethod: c.Query("payment_method"),
		Verified:      queryBool(c, "verified"),
		From:          c.Query("start_date"),
		To:            c.Query("end_date"),
	}
	if !middleware.IsAdmin(c) {
		query.StaffID = middleware.GetStaffID(c)
		if query.StaffID == 0 {
			respondFail(c, http.StatusForbidden, "No staff record is linked to this account", nil)
			return
		}
	}

	collections, total, err := h.collectionService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, "fee_collections.list", err)
		return
	}
	respondList(c, collectionResponses(collections), total, list)
}

// @Summary Collection Statistics
// @Description Today's and this month's totals, unverified count and totals per payment method
// @Tags Fee Collections
// @Produce json
// @Success 200 {object} repository.CollectionStats
// @Security BearerAuth
// @Router /fee-collections/stats [get]
func (h *CollectionHandler) Stats(c *gin.Context) {
	stats, err := h.collectionService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "fee_collections.stats", err)
		return
	}
	respond(c, http.StatusOK, stats, "")
}

// @Summary Get Fee Collection
// @Tags Fee Collections
// @Produce json
// @Param id path int true "Collection ID"
// @Success 200 {object} models.FeeCollectionResponse
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-collections/{id} [get]
func (h *CollectionHandler) Show(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	collection, err := h.collectionService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, "fee_collections.show", err)
		return
	}
	if !canSee(c, collection) {
		respondError(c, "fee_collections.show", services.ErrForbidden)
		return
	}
	respond(c, http.StatusOK, collection.ToResponse(), "")
}

// @Summary Download Receipt
// @Description Receipt PDF for a collection
// @Tags Fee Collections
// @Produce application/pdf
// @Param id path int true "Collection ID"
// @Success 200 {file} file "receipt.pdf"
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-collections/{id}/receipt [get]
func (h *CollectionHandler) Receipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	collection, err := h.collectionService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, "fee_collections.receipt", err)
		return
	}
	if !canSee(c, collection) {
		respondError(c, "fee_collections.receipt", services.ErrForbidden)
		return
	}

	data, filename, err := h.receiptService.ReceiptFor(c.Request.Context(), collection)
	if err != nil {
		respondError(c, "fee_collections.receipt", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// @Summary Verify Fee Collection
// @Description Marks a collection as checked. Verifying twice is a no-op.
// @Tags Fee Collections
// @Produce json
// @Param id path int true "Collection ID"
// @Success 200 {object} models.FeeCollectionResponse
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /fee-collections/{id}/verify [post]
func (h *CollectionHandler) Verify(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	collection, err := h.collectionService.Verify(auditContext(c), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, "fee_collections.verify", err)
		return
	}
	respond(c, http.StatusOK, collection.ToResponse(), "Collection verified")
}
