package services

import (
	"github.com/sjperalta/schoolfees-api/internal/config"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/jobs"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/storage"
)

// Services holds all service instances
type Services struct {
	Auth         *AuthService
	FeeCategory  *FeeCategoryService
	FeeStructure *FeeStructureService
	Engine       *AssignmentEngine
	Collection   *CollectionService
	Wallet       *WalletService
	Receipt      *ReceiptService
	Notification *NotificationService
	Audit        *AuditService
	Job          *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, tx database.Transactor, worker *jobs.Worker, store *storage.LocalStorage, cfg *config.Config) *Services {
	auditSvc := NewAuditService(repos.Audit)
	notificationSvc := NewNotificationService(repos.Notification, repos.User, NewEmailService(cfg))
	engine := NewAssignmentEngine(repos.FeeStructure, repos.Assignment, repos.Directory, tx, auditSvc)
	walletSvc := NewWalletService(repos.Wallet, repos.Directory, tx, auditSvc)

	return &Services{
		Auth:         NewAuthService(repos.User, cfg),
		FeeCategory:  NewFeeCategoryService(repos.FeeCategory, auditSvc),
		FeeStructure: NewFeeStructureService(repos.FeeStructure, repos.FeeCategory, repos.Assignment, repos.Directory, engine, tx, auditSvc),
		Engine:       engine,
		Collection: NewCollectionService(
			repos.Collection, repos.Assignment, repos.FeeStructure, repos.FeeCategory, repos.Directory,
			engine, walletSvc, notificationSvc, auditSvc, worker, tx, cfg,
		),
		Wallet:       walletSvc,
		Receipt:      NewReceiptService(repos.Collection, store, cfg),
		Notification: notificationSvc,
		Audit:        auditSvc,
		Job:          NewJobService(worker, engine),
	}
}
