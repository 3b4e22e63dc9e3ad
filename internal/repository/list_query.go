package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrNoRowsAffected is returned when a guarded UPDATE matched nothing
var ErrNoRowsAffected = errors.New("no rows matched update conditions")

// ListQuery represents common query parameters
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
	SortBy  string
	SortDir string
	Filters map[string]string
}

// NewListQuery creates a ListQuery with defaults
func NewListQuery() *ListQuery {
	return &ListQuery{
		Page:    1,
		PerPage: 20,
		Filters: make(map[string]string),
	}
}

// Filter returns a trimmed filter value
func (q *ListQuery) Filter(key string) string {
	if q == nil || q.Filters == nil {
		return ""
	}
	return strings.TrimSpace(q.Filters[key])
}

// paginate applies offset/limit
func (q *ListQuery) paginate(db *gorm.DB) *gorm.DB {
	if q == nil || q.PerPage <= 0 {
		return db
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	return db.Offset((page - 1) * q.PerPage).Limit(q.PerPage)
}

// order applies SortBy when it is one of allowed, fallback otherwise
func (q *ListQuery) order(db *gorm.DB, allowed map[string]string, fallback string) *gorm.DB {
	if q == nil || q.SortBy == "" {
		return db.Order(fallback)
	}
	column, ok := allowed[q.SortBy]
	if !ok {
		return db.Order(fallback)
	}
	if strings.EqualFold(q.SortDir, "desc") {
		column += " DESC"
	}
	return db.Order(column)
}

// endOfDay widens a bare YYYY-MM-DD upper bound to include the whole day
func endOfDay(val string) string {
	if len(val) == 10 {
		return val + " 23:59:59"
	}
	return val
}

func isDuplicateKeyError(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraintName == "" || pgErr.ConstraintName == constraintName)
	}
	return false
}
