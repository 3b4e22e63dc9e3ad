package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	FeeCategory  *FeeCategoryHandler
	FeeStructure *FeeStructureHandler
	StudentFee   *StudentFeeHandler
	Collection   *CollectionHandler
	Wallet       *WalletHandler
	Notification *NotificationHandler
	Audit        *AuditHandler
	Job          *JobHandler
}

// NewHandlers creates all handler instances. db may be nil, which skips the
// database check of the health endpoint.
func NewHandlers(svcs *services.Services, db Pinger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(db),
		Auth:         NewAuthHandler(svcs.Auth),
		FeeCategory:  NewFeeCategoryHandler(svcs.FeeCategory),
		FeeStructure: NewFeeStructureHandler(svcs.FeeStructure),
		StudentFee:   NewStudentFeeHandler(svcs.Engine),
		Collection:   NewCollectionHandler(svcs.Collection, svcs.Receipt),
		Wallet:       NewWalletHandler(svcs.Wallet),
		Notification: NewNotificationHandler(svcs.Notification),
		Audit:        NewAuditHandler(svcs.Audit),
		Job:          NewJobHandler(svcs.Job),
	}
}

// Register mounts every API route on v1
func (h *Handlers) Register(v1 *gin.RouterGroup, jwtSecret string) {
	// Public
	v1.GET("/health", h.Health.Index)
	v1.POST("/auth/login", h.Auth.Login)

	protected := v1.Group("")
	protected.Use(middleware.Auth(jwtSecret))

	// Admin only
	admin := protected.Group("")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/fee-categories", h.FeeCategory.Create)
		admin.PUT("/fee-categories/:id", h.FeeCategory.Update)
		admin.DELETE("/fee-categories/:id", h.FeeCategory.Delete)

		admin.POST("/fee-structures", h.FeeStructure.Create)
		admin.PUT("/fee-structures/:id", h.FeeStructure.Update)
		admin.DELETE("/fee-structures/:id", h.FeeStructure.Delete)
		admin.POST("/fee-structures/:id/backfill", h.FeeStructure.Backfill)

		admin.POST("/fee-assignments/:id/cancel", h.StudentFee.Cancel)
		admin.POST("/fee-collections/:id/verify", h.Collection.Verify)

		// Static routes first so "statistics" is not matched as :staff_id
		admin.GET("/wallets", h.Wallet.Index)
		admin.GET("/wallets/statistics", h.Wallet.Statistics)
		admin.GET("/wallets/:staff_id", h.Wallet.Show)
		admin.GET("/wallets/:staff_id/ledger", h.Wallet.Ledger)
		admin.GET("/wallets/:staff_id/reconcile", h.Wallet.Reconcile)
		admin.POST("/wallets/:staff_id/withdraw", h.Wallet.Withdraw)
		admin.POST("/wallets/:staff_id/clear", h.Wallet.Clear)
		admin.POST("/wallets/:staff_id/adjust", h.Wallet.Adjust)

		admin.GET("/audits", h.Audit.Index)
		admin.GET("/jobs/status", h.Job.Status)
		admin.POST("/jobs/overdue_sweep", h.Job.OverdueSweep)
	}

	// Admin and staff
	office := protected.Group("")
	office.Use(middleware.RequireRole(models.RoleAdmin, models.RoleStaff))
	{
		office.GET("/fee-categories", h.FeeCategory.Index)
		office.GET("/fee-categories/:id", h.FeeCategory.Show)
		office.GET("/fee-structures", h.FeeStructure.Index)
		office.GET("/fee-structures/:id", h.FeeStructure.Show)

		office.POST("/students/:student_id/fees/assign", h.StudentFee.Assign)

		office.POST("/fee-collections", h.Collection.Create)
		office.GET("/fee-collections", h.Collection.Index)
		office.GET("/fee-collections/stats", h.Collection.Stats)
		office.GET("/fee-collections/:id", h.Collection.Show)
		office.GET("/fee-collections/:id/receipt", h.Collection.Receipt)

		office.GET("/wallet", h.Wallet.Mine)
		office.GET("/wallet/ledger", h.Wallet.MyLedger)
	}

	// Admin, staff and parents; parents only for their own children
	family := protected.Group("")
	family.Use(middleware.RequireRole(models.RoleAdmin, models.RoleStaff, models.RoleParent))
	{
		family.GET("/students/:student_id/fees", h.StudentFee.Index)
		family.GET("/students/:student_id/fees/optional", h.StudentFee.Optional)
		family.POST("/students/:student_id/fees/optional", h.StudentFee.SelectOptional)
	}

	// Any signed-in user
	notifications := protected.Group("/notifications")
	{
		notifications.GET("", h.Notification.Index)
		notifications.POST("/mark_all_as_read", h.Notification.MarkAllAsRead)
		notifications.POST("/:id/mark_as_read", h.Notification.MarkAsRead)
	}
}
