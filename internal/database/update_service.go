package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UpdateService provides database operations for per-printer update history.
// Rows transition pending → downloading → {completed|failed|declined};
// terminal states are absorbing.
type UpdateService struct {
	db *gorm.DB
}

// NewUpdateService creates a new update history service
func NewUpdateService(db *gorm.DB) *UpdateService {
	return &UpdateService{db: db}
}

// Create opens a pending update attempt for a (rollout, printer, version)
func (s *UpdateService) Create(rolloutID *uuid.UUID, printerID uuid.UUID, version string) (*UpdateHistory, error) {
	row := &UpdateHistory{
		RolloutID:       rolloutID,
		PrinterID:       printerID,
		FirmwareVersion: version,
		Status:          UpdateStatusPending,
	}
	if err := s.db.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// OpenAttempt returns the non-terminal attempt for a rollout+printer pair,
// or nil when none exists.
func (s *UpdateService) OpenAttempt(rolloutID, printerID uuid.UUID) (*UpdateHistory, error) {
	var row UpdateHistory
	err := s.db.
		Where("rollout_id = ? AND printer_id = ? AND status IN ?",
			rolloutID, printerID, []string{UpdateStatusPending, UpdateStatusDownloading}).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestAttempt returns the newest attempt for a rollout+printer pair in any
// state, or nil when the pair has never been offered.
func (s *UpdateService) LatestAttempt(rolloutID, printerID uuid.UUID) (*UpdateHistory, error) {
	var row UpdateHistory
	err := s.db.
		Where("rollout_id = ? AND printer_id = ?", rolloutID, printerID).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestOpenForPrinter returns the most recent non-terminal attempt for a
// printer, or nil when the printer has nothing in flight.
func (s *UpdateService) LatestOpenForPrinter(printerID uuid.UUID) (*UpdateHistory, error) {
	var row UpdateHistory
	err := s.db.
		Where("printer_id = ? AND status IN ?",
			printerID, []string{UpdateStatusPending, UpdateStatusDownloading}).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// SetProgress records a progress report. A pending attempt moves to
// downloading on its first report.
func (s *UpdateService) SetProgress(id uuid.UUID, percent int, statusMessage string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row UpdateHistory
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		if row.Terminal() {
			return fmt.Errorf("%w: %s is terminal", ErrBadTransition, row.Status)
		}

		updates := map[string]interface{}{
			"last_percent":        percent,
			"last_status_message": statusMessage,
		}
		if row.Status == UpdateStatusPending {
			updates["status"] = UpdateStatusDownloading
		}
		return tx.Model(&row).Updates(updates).Error
	})
}

// MarkCompleted closes an attempt as successfully installed
func (s *UpdateService) MarkCompleted(id uuid.UUID) error {
	return s.close(id, UpdateStatusCompleted, "")
}

// MarkFailed closes an attempt with an error message
func (s *UpdateService) MarkFailed(id uuid.UUID, errorMessage string) error {
	return s.close(id, UpdateStatusFailed, errorMessage)
}

// MarkDeclined closes an attempt the printer refused
func (s *UpdateService) MarkDeclined(id uuid.UUID) error {
	return s.close(id, UpdateStatusDeclined, "")
}

func (s *UpdateService) close(id uuid.UUID, status, errorMessage string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row UpdateHistory
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		if row.Terminal() {
			return fmt.Errorf("%w: %s is terminal", ErrBadTransition, row.Status)
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":       status,
			"completed_at": now,
		}
		if errorMessage != "" {
			updates["error_message"] = errorMessage
		}
		return tx.Model(&row).Updates(updates).Error
	})
}

// HistoryForPrinter returns a printer's update attempts, newest first
func (s *UpdateService) HistoryForPrinter(printerID uuid.UUID, limit int) ([]UpdateHistory, error) {
	var rows []UpdateHistory
	err := s.db.
		Where("printer_id = ?", printerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// HistoryForRollout returns all attempts belonging to a rollout
func (s *UpdateService) HistoryForRollout(rolloutID uuid.UUID) ([]UpdateHistory, error) {
	var rows []UpdateHistory
	err := s.db.
		Where("rollout_id = ?", rolloutID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
