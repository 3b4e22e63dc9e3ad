package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/schoolfees-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handlers-test-secret"

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": uint(1),
		"email":   role + "@school.test",
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	switch role {
	case "staff":
		claims["staff_id"] = uint(4)
	case "parent":
		claims["parent_id"] = uint(9)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// newTestRouter mounts the real route table over empty services; requests
// in these tests are answered before any service is reached.
func newTestRouter(db Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandlers(&services.Services{}, db).Register(r.Group("/api/v1"), testSecret)
	return r
}

func doRequest(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		r := newTestRouter(pingFunc(func(context.Context) error { return nil }))
		w := doRequest(r, http.MethodGet, "/api/v1/health", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "ok", body["database"])
	})

	t.Run("database down", func(t *testing.T) {
		r := newTestRouter(pingFunc(func(context.Context) error { return errors.New("connection refused") }))
		w := doRequest(r, http.MethodGet, "/api/v1/health", "", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "degraded", decodeBody(t, w)["status"])
	})
}

func TestRoutes_RoleChecks(t *testing.T) {
	r := newTestRouter(nil)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		status int
	}{
		{"no token", http.MethodGet, "/api/v1/fee-categories", "", http.StatusUnauthorized},
		{"staff cannot create categories", http.MethodPost, "/api/v1/fee-categories", "staff", http.StatusForbidden},
		{"staff cannot delete structures", http.MethodDelete, "/api/v1/fee-structures/1", "staff", http.StatusForbidden},
		{"staff cannot verify collections", http.MethodPost, "/api/v1/fee-collections/1/verify", "staff", http.StatusForbidden},
		{"staff cannot read other wallets", http.MethodGet, "/api/v1/wallets/2", "staff", http.StatusForbidden},
		{"staff cannot read audits", http.MethodGet, "/api/v1/audits", "staff", http.StatusForbidden},
		{"parent cannot collect", http.MethodPost, "/api/v1/fee-collections", "parent", http.StatusForbidden},
		{"parent cannot list structures", http.MethodGet, "/api/v1/fee-structures", "parent", http.StatusForbidden},
		{"parent cannot assign", http.MethodPost, "/api/v1/students/1/fees/assign", "parent", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := ""
			if tt.role != "" {
				token = tokenFor(t, tt.role)
			}
			w := doRequest(r, tt.method, tt.path, token, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "error", decodeBody(t, w)["status"])
		})
	}
}

func TestRoutes_RequestValidation(t *testing.T) {
	r := newTestRouter(nil)
	admin := tokenFor(t, "admin")

	t.Run("category without name", func(t *testing.T) {
		w := doRequest(r, http.MethodPost, "/api/v1/fee-categories", admin, `{"description": "x"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		errs := decodeBody(t, w)["errors"].(map[string]interface{})
		assert.Contains(t, errs, "name")
	})

	t.Run("structure with bad due date", func(t *testing.T) {
		body := `{"fee_structure": {"academic_year_id": 1, "fee_category_id": 2, "amount": "100.00", "due_date": "31/01/2025"}}`
		w := doRequest(r, http.MethodPost, "/api/v1/fee-structures", admin, body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		errs := decodeBody(t, w)["errors"].(map[string]interface{})
		assert.Contains(t, errs, "due_date")
	})

	t.Run("collection with unknown payment method", func(t *testing.T) {
		body := `{"student_id": 1, "amount": 50, "payment_method": "barter"}`
		w := doRequest(r, http.MethodPost, "/api/v1/fee-collections", tokenFor(t, "staff"), body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		errs := decodeBody(t, w)["errors"].(map[string]interface{})
		assert.Contains(t, errs, "payment_method")
	})

	t.Run("non-numeric id", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/fee-structures/abc", admin, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid id", decodeBody(t, w)["message"])
	})

	t.Run("login without password", func(t *testing.T) {
		w := doRequest(r, http.MethodPost, "/api/v1/auth/login", "", `{"email": "a@school.test"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		errs := decodeBody(t, w)["errors"].(map[string]interface{})
		assert.Contains(t, errs, "password")
	})
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("fee structure %w", services.ErrNotFound), http.StatusNotFound, "Fee structure record not found"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "You do not have permission to access this resource"},
		{"unauthorized", services.ErrUnauthorized, http.StatusUnauthorized, "Invalid credentials"},
		{"overpayment", services.ErrOverpayment, http.StatusBadRequest, "Payment amount exceeds pending balance"},
		{"insufficient balance", services.ErrInsufficientBalance, http.StatusBadRequest, "Insufficient wallet balance"},
		{"duplicate", services.ErrDuplicate, http.StatusBadRequest, "Duplicate record"},
		{"invalid state", services.ErrInvalidState, http.StatusBadRequest, "Invalid state transition"},
		{"no academic year", services.ErrNoAcademicYear, http.StatusBadRequest, "No academic year configured"},
		{"validation", &services.ValidationError{Fields: map[string]string{"amount": "must be positive"}}, http.StatusBadRequest, "Validation failed"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, "test.op", tt.err)

			assert.Equal(t, tt.status, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestRespondError_StructureInUse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodDelete, "/", nil)

	respondError(c, "fee_structures.delete", &services.StructureInUseError{AssignmentCount: 12})

	require.Equal(t, http.StatusBadRequest, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["can_force_delete"])
	assert.Equal(t, float64(12), data["assignment_count"])
}

func TestListQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		query   string
		page    int
		perPage int
		search  string
	}{
		{"defaults", "", 1, defaultPerPage, ""},
		{"explicit", "?page=3&per_page=50&search_term=%20tuition%20", 3, 50, "tuition"},
		{"capped", "?per_page=500", 1, maxPerPage, ""},
		{"garbage", "?page=-2&per_page=abc", 1, defaultPerPage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)

			q := listQuery(c)
			assert.Equal(t, tt.page, q.Page)
			assert.Equal(t, tt.perPage, q.PerPage)
			assert.Equal(t, tt.search, q.Search)
		})
	}
}

func TestQueryHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?student_id=7&verified=true&bogus=x", nil)

	assert.Equal(t, uint(7), queryID(c, "student_id"))
	assert.Equal(t, uint(0), queryID(c, "missing"))
	require.NotNil(t, queryBool(c, "verified"))
	assert.True(t, *queryBool(c, "verified"))
	assert.Nil(t, queryBool(c, "bogus"))
	assert.Nil(t, queryBool(c, "missing"))
}
