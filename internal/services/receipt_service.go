package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"
	"github.com/sjperalta/schoolfees-api/internal/config"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/storage"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
)

// ReceiptService renders fee receipts as PDF and caches them on disk
type ReceiptService struct {
	collections repository.CollectionRepository
	store       *storage.LocalStorage
	cfg         *config.Config
}

// NewReceiptService creates a new receipt service. A nil store disables caching.
func NewReceiptService(collections repository.CollectionRepository, store *storage.LocalStorage, cfg *config.Config) *ReceiptService {
	return &ReceiptService{collections: collections, store: store, cfg: cfg}
}

// Receipt returns the PDF for a collection and its download file name
func (s *ReceiptService) Receipt(ctx context.Context, collectionID uint) ([]byte, string, error) {
	collection, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, "", notFound("fee collection", err)
	}
	return s.ReceiptFor(ctx, collection)
}

// ReceiptFor returns the PDF for an already loaded collection
func (s *ReceiptService) ReceiptFor(ctx context.Context, collection *models.FeeCollection) ([]byte, string, error) {
	collectionID := collection.ID
	filename := collection.ReceiptNumber + ".pdf"

	if s.store != nil && collection.ReceiptPath != nil && s.store.Exists(*collection.ReceiptPath) {
		data, err := s.store.Read(*collection.ReceiptPath)
		if err == nil {
			return data, filename, nil
		}
		logger.Warn("Cached receipt unreadable, re-rendering", "collection_id", collectionID, "error", err)
	}

	data, err := s.Render(collection)
	if err != nil {
		logger.Error("Failed to render receipt", "collection_id", collectionID, "error", err)
		return nil, "", err
	}

	if s.store != nil {
		dir := filepath.Join("receipts", collection.CollectionDate.Format("2006/01"))
		path, err := s.store.Save(dir, filename, data)
		if err != nil {
			logger.Warn("Failed to cache receipt", "collection_id", collectionID, "error", err)
		} else if err := s.collections.SetReceiptPath(ctx, collection.ID, path); err != nil {
			logger.Warn("Failed to record receipt path", "collection_id", collectionID, "error", err)
		}
	}
	return data, filename, nil
}

// Render draws a single-page receipt
func (s *ReceiptService) Render(c *models.FeeCollection) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("Receipt "+c.ReceiptNumber, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, s.cfg.SchoolName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, "Fee Payment Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	row := func(label, value string) {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
	}

	row("Receipt No.:", c.ReceiptNumber)
	row("Date:", c.CollectionDate.Format("2006-01-02 15:04"))
	if c.Student != nil {
		row("Student:", c.Student.FullName())
		if c.Student.AdmissionNo != "" {
			row("Admission No.:", c.Student.AdmissionNo)
		}
	} else {
		row("Student ID:", fmt.Sprintf("%d", c.StudentID))
	}
	if name := c.CategoryName(); name != "" {
		row("Fee:", name)
	}
	if c.Assignment != nil && c.Assignment.Period != "" {
		row("Period:", c.Assignment.Period)
	}
	row("Payment Method:", c.PaymentMethod)
	if c.ReferenceNumber != nil && *c.ReferenceNumber != "" {
		row("Reference:", *c.ReferenceNumber)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(45, 9, "Amount Paid:", "T", 0, "L", false, 0, "")
	pdf.CellFormat(0, 9, fmt.Sprintf("%s %s", c.Amount.StringFixed(2), s.cfg.Currency), "T", 1, "L", false, 0, "")

	if c.Remarks != nil && *c.Remarks != "" {
		pdf.Ln(2)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, *c.Remarks, "", "L", false)
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	collector := fmt.Sprintf("Staff #%d", c.CollectedByStaffID)
	if c.CollectedBy != nil {
		collector = c.CollectedBy.FullName
	}
	pdf.CellFormat(0, 5, "Collected by: "+collector, "", 1, "L", false, 0, "")

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
