package repository

import (
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	User         UserRepository
	Directory    DirectoryRepository
	FeeCategory  FeeCategoryRepository
	FeeStructure FeeStructureRepository
	Assignment   AssignmentRepository
	Collection   CollectionRepository
	Wallet       WalletRepository
	Notification NotificationRepository
	Audit        AuditRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Directory:    NewDirectoryRepository(db),
		FeeCategory:  NewFeeCategoryRepository(db),
		FeeStructure: NewFeeStructureRepository(db),
		Assignment:   NewAssignmentRepository(db),
		Collection:   NewCollectionRepository(db),
		Wallet:       NewWalletRepository(db),
		Notification: NewNotificationRepository(db),
		Audit:        NewAuditRepository(db),
	}
}
