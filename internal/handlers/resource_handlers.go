package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// @Summary List Notifications
// @Description Notifications of the signed-in user, with the unread count
// @Tags Notifications
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "read or unread"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) Index(c *gin.Context) {
	userID := middleware.GetUserID(c)
	query := listQuery(c)
	if status := c.Query("status"); status != "" {
		query.Filters["status"] = status
	}

	notifications, total, err := h.notificationService.FindByUser(c.Request.Context(), userID, query)
	if err != nil {
		respondError(c, "notifications.list", err)
		return
	}
	unread, err := h.notificationService.CountUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "notifications.count_unread", err)
		return
	}

	responses := make([]models.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, notifications[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"data":         responses,
		"unread_count": unread,
		"pagination": gin.H{
			"page":     query.Page,
			"per_page": query.PerPage,
			"total":    total,
		},
	})
}

// @Summary Mark Notification Read
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /notifications/{id}/mark_as_read [post]
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notificationService.MarkAsRead(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		respondError(c, "notifications.mark_as_read", err)
		return
	}
	respond(c, http.StatusOK, nil, "Notification marked as read")
}

// @Summary Mark All Notifications Read
// @Description Mark all notifications as read for current user
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /notifications/mark_all_as_read [post]
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, "notifications.mark_all_as_read", err)
		return
	}
	respond(c, http.StatusOK, nil, "All notifications marked as read")
}

type AuditHandler struct {
	auditService *services.AuditService
}

func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// @Summary List Audit Logs
// @Description Audit trail of structure, collection and wallet changes
// @Tags Audits
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param entity query string false "FeeStructure, FeeCollection, StaffWallet, ..."
// @Param entity_id query int false "Entity ID"
// @Param user_id query int false "Acting user"
// @Param action query string false "CREATE, DELETE, VERIFY, WITHDRAW, ..."
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audits [get]
func (h *AuditHandler) Index(c *gin.Context) {
	query := listQuery(c)
	for _, key := range []string{"entity", "entity_id", "user_id", "action"} {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			query.Filters[key] = v
		}
	}

	logs, total, err := h.auditService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, "audits.list", err)
		return
	}
	respondList(c, logs, total, query)
}
