package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

type WalletHandler struct {
	walletService *services.WalletService
}

func NewWalletHandler(walletService *services.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

type WithdrawRequest struct {
	Amount      *decimal.Decimal `json:"amount" binding:"required"`
	Description string           `json:"description" binding:"max=500"`
}

type ClearBalanceRequest struct {
	Description string `json:"description" binding:"max=500"`
}

// AdjustRequest corrects a wallet by a signed amount
type AdjustRequest struct {
	Amount      *decimal.Decimal `json:"amount" binding:"required"`
	Description string           `json:"description" binding:"required,max=500"`
}

// ownStaffID returns the caller's staff record or answers 403
func ownStaffID(c *gin.Context) (uint, bool) {
	staffID := middleware.GetStaffID(c)
	if staffID == 0 {
		respondFail(c, http.StatusForbidden, "No staff record is linked to this account", nil)
		return 0, false
	}
	return staffID, true
}

func ledgerQuery(c *gin.Context) *repository.LedgerQuery {
	return &repository.LedgerQuery{
		ListQuery:       listQuery(c),
		TransactionType: c.Query("transaction_type"),
		From:            c.Query("start_date"),
		To:              c.Query("end_date"),
	}
}

// @Summary List Staff Wallets
// @Tags Wallets
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param search_term query string false "Staff name or email"
// @Param has_balance query bool false "Only wallets holding cash"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /wallets [get]
func (h *WalletHandler) Index(c *gin.Context) {
	query := listQuery(c)
	if hasBalance := queryBool(c, "has_balance"); hasBalance != nil && *hasBalance {
		query.Filters["has_balance"] = "true"
	}
	wallets, total, err := h.walletService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, "wallets.list", err)
		return
	}
	respondList(c, wallets, total, query)
}

// @Summary Wallet Statistics
// @Description Totals across every staff wallet
// @Tags Wallets
// @Produce json
// @Success 200 {object} repository.WalletStatistics
// @Security BearerAuth
// @Router /wallets/statistics [get]
func (h *WalletHandler) Statistics(c *gin.Context) {
	stats, err := h.walletService.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, "wallets.statistics", err)
		return
	}
	respond(c, http.StatusOK, stats, "")
}

// @Summary Get Staff Wallet
// @Tags Wallets
// @Produce json
// @Param staff_id path int true "Staff ID"
// @Success 200 {object} models.StaffWallet
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /wallets/{staff_id} [get]
func (h *WalletHandler) Show(c *gin.Context) {
	staffID, ok := pathID(c, "staff_id")
	if !ok {
		return
	}
	h.show(c, staffID)
}

// @Summary My Wallet
// @Description Wallet of the signed-in staff member
// @Tags Wallets
// @Produce json
// @Success 200 {object} models.StaffWallet
// @Failure 403 {object} map[string]interface{}
// @Security BearerAuth
// @Router /wallet [get]
func (h *WalletHandler) Mine(c *gin.Context) {
	staffID, ok := ownStaffID(c)
	if !ok {
		return
	}
	h.show(c, staffID)
}

func (h *WalletHandler) show(c *gin.Context, staffID uint) {
	wallet, err := h.walletService.GetWallet(c.Request.Context(), staffID)
	if err != nil {
		respondError(c, "wallets.show", err)
		return
	}
	respond(c, http.StatusOK, wallet, "")
}

// @Summary Wallet Ledger
// @Description Ledger entries newest first; balance is the wallet balance after each entry
// @Tags Wallets
// @Produce json
// @Param staff_id path int true "Staff ID"
// @Param transaction_type query string false "collection, withdrawal or adjustment"
// @Param start_date query string false "From date (YYYY-MM-DD)"
// @Param end_date query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /wallets/{staff_id}/ledger [get]
func (h *WalletHandler) Ledger(c *gin.Context) {
	staffID, ok := pathID(c, "staff_id")
	if !ok {
		return
	}
	h.ledger(c, staffID)
}

// @Summary My Wallet Ledger
// @Tags Wallets
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /wallet/ledger [get]
func (h *WalletHandler) MyLedger(c *gin.Context) {
	staffID, ok := ownStaffID(c)
	if !ok {
		return
	}
	h.ledger(c, staffID)
}

func (h *WalletHandler) ledger(c *gin.Context, staffID uint) {
	query := ledgerQuery(c)
	entries, total, err := h.walletService.Ledger(c.Request.Context(), staffID, query)
	if err != nil {
		respondError(c, "wallets.ledger", err)
		return
	}
	respondList(c, entries, total, query.ListQuery)
}

// @Summary Reconcile Wallet
// @Description Replays the ledger and compares it with the wallet totals
// @Tags Wallets
// @Produce json
// @Param staff_id path int true "Staff ID"
// @Success 200 {object} services.ReconcileReport
// @Security BearerAuth
// @Router /wallets/{staff_id}/reconcile [get]
func (h *WalletHandler) Reconcile(c *gin.Context) {
	staffID, ok := pathID(c, "staff_id")
	if !ok {
		return
	}
	report, err := h.walletService.Reconcile(c.Request.Context(), staffID)
	if err != nil {
		respondError(c, "wallets.reconcile", err)
		return
	}
	respond(c, http.StatusOK, report, "")
}

// @Summary Withdraw From Wallet
// @Description Records cash handed over by a staff member. The amount may not exceed the balance.
// @Tags Wallets
// @Accept json
// @Produce json
// @Param staff_id path int true "Staff ID"
// @Param request body WithdrawRequest true "Withdrawal"
// @Success 200 {object} services.WalletMovement
// @Failure 400 {object} map[string]interface{}
// @Security BearerAuth
// @Router /wallets/{staff_id}/withdraw [post]
func (h *WalletHandler) Withdraw(c *gin.Context) {
	staffID, ok := pathID(c, "staff_id")
	if !ok {
		return
	}
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	movement, err := h.walletService.Withdraw(auditContext(c), staffID, *req.Amount, middleware.GetUserID(c), req.Description)
	if err != nil {
		respondError(c, "wallets.withdraw", err)
		return
	}
	respond(c, http.StatusOK, movement, "Withdrawal recorded")
}

// @Summary Clear Wallet Balance
// @Description Withdraws the whole balance
// @Tags Wallets
// @Accept json
// @Produce json
// @Param staff_id path int true "Staff ID"
// @Param request body ClearBalanceRequest false "Description"
// @Success 200 {object} services.WalletMovement
// @Failure 400 {object} map[string]interface{}
// @Security BearerAuth
// @Router /wallets/{staff_id}/clear [post]
func (h *WalletHandler) Clear(c *gin.Context) {
	staffID, ok := pathID(c, "staff_id")
	if !ok {
		return
	}
	var req ClearBalanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	movement, err := h.walletService.ClearBalance(auditContext(c), staffID, middleware.GetUserID(c), req.Description)
	if err != nil {
		respondError(c, "wallets.clear", err)
		return
	}
	respond(c, http.StatusOK, movement, "Balance cleared")
}

// @Summary Adjust Wallet
// @Description Corrects a wallet by a signed amount; a description is required
// @Tags Wallets
// @Accept json
// @Produce json
// @Param staff_id path int true "Staff ID"
// @Param request body AdjustRequest true "Adjustment"
// @Success 200 {object} services.WalletMovement
// @Failure 400 {object} map[string]interface{}
// @Security BearerAuth
// @Router /wallets/{staff_id}/adjust [post]
func (h *WalletHandler) Adjust(c *gin.Context) {
	staffID, ok := pathID(c, "staff_id")
	if !ok {
		return
	}
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	movement, err := h.walletService.Adjust(auditContext(c), staffID, *req.Amount, middleware.GetUserID(c), req.Description)
	if err != nil {
		respondError(c, "wallets.adjust", err)
		return
	}
	respond(c, http.StatusOK, movement, "Adjustment recorded")
}
