package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/services"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// respond writes the success envelope
func respond(c *gin.Context, status int, data interface{}, message string) {
	body := gin.H{"status": "success", "data": data}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

// respondList writes a page of results with pagination metadata
func respondList(c *gin.Context, data interface{}, total int64, query *repository.ListQuery) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   data,
		"pagination": gin.H{
			"page":     query.Page,
			"per_page": query.PerPage,
			"total":    total,
		},
	})
}

// respondFail writes the error envelope
func respondFail(c *gin.Context, status int, message string, fields map[string]string) {
	body := gin.H{"status": "error", "message": message}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	c.AbortWithStatusJSON(status, body)
}

// respondBindError reports a request that failed binding
func respondBindError(c *gin.Context, err error) {
	respondFail(c, http.StatusBadRequest, "Validation failed", bindingErrors(err))
}

// respondError maps a service error to a status code. Unexpected errors are
// logged with the operation name and reported to Sentry; the client only
// sees a generic message.
func respondError(c *gin.Context, op string, err error) {
	_ = c.Error(err)

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		respondFail(c, http.StatusBadRequest, "Validation failed", verr.Fields)
		return
	}

	var inUse *services.StructureInUseError
	if errors.As(err, &inUse) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": inUse.Error(),
			"data": gin.H{
				"can_force_delete": inUse.CanForceDelete(),
				"assignment_count": inUse.AssignmentCount,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrNotFound):
		respondFail(c, http.StatusNotFound, capitalize(err.Error()), nil)
	case errors.Is(err, services.ErrForbidden):
		respondFail(c, http.StatusForbidden, "You do not have permission to access this resource", nil)
	case errors.Is(err, services.ErrUnauthorized):
		respondFail(c, http.StatusUnauthorized, capitalize(err.Error()), nil)
	case errors.Is(err, services.ErrOverpayment),
		errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, services.ErrDuplicate),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrNoAcademicYear),
		errors.Is(err, services.ErrValidation):
		respondFail(c, http.StatusBadRequest, capitalize(err.Error()), nil)
	default:
		logger.Error("Request failed",
			"op", op,
			"path", c.FullPath(),
			"user_id", middleware.GetUserID(c),
			"request_id", middleware.GetRequestID(c),
			"error", err,
		)
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		respondFail(c, http.StatusInternalServerError, "An unexpected error occurred", nil)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// pathID parses a numeric path parameter, answering 400 when it is not one
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		respondFail(c, http.StatusBadRequest, "Invalid "+name, nil)
		return 0, false
	}
	return uint(id), true
}

// queryID parses an optional numeric query parameter, 0 when absent or invalid
func queryID(c *gin.Context, name string) uint {
	id, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

// queryBool parses an optional boolean query parameter
func queryBool(c *gin.Context, name string) *bool {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &val
}

// listQuery reads page, per_page, search_term, sort_by and sort_dir
func listQuery(c *gin.Context) *repository.ListQuery {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if query.Page < 1 {
		query.Page = 1
	}
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if query.PerPage < 1 {
		query.PerPage = defaultPerPage
	}
	if query.PerPage > maxPerPage {
		query.PerPage = maxPerPage
	}
	query.Search = strings.TrimSpace(c.Query("search_term"))
	query.SortBy = c.Query("sort_by")
	query.SortDir = c.Query("sort_dir")
	return query
}

// auditContext carries the caller's address into audit entries
func auditContext(c *gin.Context) context.Context {
	return services.WithClientInfo(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
}
