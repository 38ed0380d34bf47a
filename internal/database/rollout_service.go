package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/semver"
	"gorm.io/gorm"
)

// Legal rollout status transitions. pending→active→{paused↔active}→
// {completed|cancelled}; paused and cancelled never push updates.
var rolloutTransitions = map[string][]string{
	RolloutStatusPending: {RolloutStatusActive, RolloutStatusCancelled},
	RolloutStatusActive:  {RolloutStatusPaused, RolloutStatusCompleted, RolloutStatusCancelled},
	RolloutStatusPaused:  {RolloutStatusActive, RolloutStatusCancelled},
}

// RolloutService provides database operations for update rollouts
type RolloutService struct {
	db *gorm.DB
}

// NewRolloutService creates a new rollout service
func NewRolloutService(db *gorm.DB) *RolloutService {
	return &RolloutService{db: db}
}

// Create validates and inserts a rollout, then computes its target counters
// from the current printer fleet.
func (s *RolloutService) Create(rollout *UpdateRollout) error {
	switch rollout.RolloutType {
	case RolloutTypeImmediate, RolloutTypeGradual, RolloutTypeScheduled:
	case "":
		rollout.RolloutType = RolloutTypeImmediate
	default:
		return fmt.Errorf("invalid rollout type: %s", rollout.RolloutType)
	}

	if rollout.RolloutType == RolloutTypeGradual &&
		(rollout.RolloutPercentage < 1 || rollout.RolloutPercentage > 100) {
		return fmt.Errorf("rollout percentage must be between 1 and 100 for gradual rollouts")
	}
	if rollout.RolloutType == RolloutTypeScheduled && rollout.ScheduledFor == nil {
		return fmt.Errorf("scheduled time required for scheduled rollouts")
	}
	if rollout.Status == "" {
		rollout.Status = RolloutStatusPending
	}

	targets, err := s.MatchingPrinters(rollout)
	if err != nil {
		return err
	}
	rollout.TotalTargets = len(targets)
	rollout.PendingCount = len(targets)

	return s.db.Create(rollout).Error
}

// MatchingPrinters returns the printers a rollout's targeting selects.
// Explicit ID lists union with channel matches; the version window then
// gates whichever branch matched.
func (s *RolloutService) MatchingPrinters(rollout *UpdateRollout) ([]Printer, error) {
	var candidates []Printer

	if rollout.TargetAll {
		if err := s.db.Find(&candidates).Error; err != nil {
			return nil, err
		}
	} else {
		query := s.db
		var conds []string
		var args []interface{}
		if len(rollout.TargetUserIDs) > 0 {
			conds = append(conds, "user_id IN ?")
			args = append(args, []string(rollout.TargetUserIDs))
		}
		if len(rollout.TargetPrinterIDs) > 0 {
			conds = append(conds, "id IN ?")
			args = append(args, []string(rollout.TargetPrinterIDs))
		}
		if len(rollout.TargetChannels) > 0 {
			conds = append(conds, "update_channel IN ?")
			args = append(args, []string(rollout.TargetChannels))
		}
		if len(conds) == 0 {
			return nil, nil
		}
		where := conds[0]
		for _, c := range conds[1:] {
			where += " OR " + c
		}
		if err := query.Where(where, args...).Find(&candidates).Error; err != nil {
			return nil, err
		}
	}

	out := candidates[:0]
	for _, p := range candidates {
		if rollout.MinVersion != nil && semver.Compare(p.FirmwareVersion, *rollout.MinVersion) < 0 {
			continue
		}
		if rollout.MaxVersion != nil && semver.Compare(p.FirmwareVersion, *rollout.MaxVersion) > 0 {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Matches reports whether one printer falls inside a rollout's targeting.
func (s *RolloutService) Matches(rollout *UpdateRollout, printer *Printer) bool {
	if rollout.MinVersion != nil && semver.Compare(printer.FirmwareVersion, *rollout.MinVersion) < 0 {
		return false
	}
	if rollout.MaxVersion != nil && semver.Compare(printer.FirmwareVersion, *rollout.MaxVersion) > 0 {
		return false
	}

	if rollout.TargetAll {
		return true
	}
	if printer.UserID != nil {
		for _, id := range rollout.TargetUserIDs {
			if id == printer.UserID.String() {
				return true
			}
		}
	}
	for _, id := range rollout.TargetPrinterIDs {
		if id == printer.ID.String() {
			return true
		}
	}
	for _, ch := range rollout.TargetChannels {
		if ch == printer.UpdateChannel {
			return true
		}
	}
	return false
}

// GetByID returns a rollout by ID
func (s *RolloutService) GetByID(id uuid.UUID) (*UpdateRollout, error) {
	var rollout UpdateRollout
	if err := s.db.First(&rollout, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRolloutNotFound
		}
		return nil, err
	}
	return &rollout, nil
}

// List returns rollouts, optionally filtered by status, newest first
func (s *RolloutService) List(status string) ([]UpdateRollout, error) {
	query := s.db.Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var rollouts []UpdateRollout
	err := query.Find(&rollouts).Error
	return rollouts, err
}

// ListActive returns all active rollouts, newest first
func (s *RolloutService) ListActive() ([]UpdateRollout, error) {
	return s.List(RolloutStatusActive)
}

// SetStatus transitions a rollout through the lifecycle DAG. Invalid
// transitions return ErrBadTransition.
func (s *RolloutService) SetStatus(id uuid.UUID, status string) (*UpdateRollout, error) {
	rollout, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range rolloutTransitions[rollout.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, rollout.Status, status)
	}

	if err := s.db.Model(rollout).Update("status", status).Error; err != nil {
		return nil, err
	}
	rollout.Status = status
	return rollout, nil
}

// SetPercentage updates the gradual-rollout percentage
func (s *RolloutService) SetPercentage(id uuid.UUID, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("rollout percentage must be between 0 and 100")
	}
	result := s.db.Model(&UpdateRollout{}).Where("id = ?", id).
		Update("rollout_percentage", percentage)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRolloutNotFound
	}
	return nil
}

// Delete removes a rollout
func (s *RolloutService) Delete(id uuid.UUID) error {
	result := s.db.Delete(&UpdateRollout{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRolloutNotFound
	}
	return nil
}

// ActivateDue activates pending scheduled rollouts whose start time has
// passed and returns the rollouts affected.
func (s *RolloutService) ActivateDue(now time.Time) ([]UpdateRollout, error) {
	var due []UpdateRollout
	err := s.db.
		Where("status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?", RolloutStatusPending, now.UTC()).
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	for i := range due {
		if err := s.db.Model(&due[i]).Update("status", RolloutStatusActive).Error; err != nil {
			return nil, err
		}
		due[i].Status = RolloutStatusActive
	}
	return due, nil
}

// IncrementCompleted moves one pending target to completed
func (s *RolloutService) IncrementCompleted(id uuid.UUID) error {
	return s.bumpCounter(id, "completed_count")
}

// IncrementFailed moves one pending target to failed
func (s *RolloutService) IncrementFailed(id uuid.UUID) error {
	return s.bumpCounter(id, "failed_count")
}

// IncrementDeclined moves one pending target to declined
func (s *RolloutService) IncrementDeclined(id uuid.UUID) error {
	return s.bumpCounter(id, "declined_count")
}

func (s *RolloutService) bumpCounter(id uuid.UUID, column string) error {
	err := s.db.Model(&UpdateRollout{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			column:          gorm.Expr(column + " + 1"),
			"pending_count": gorm.Expr("CASE WHEN pending_count > 0 THEN pending_count - 1 ELSE 0 END"),
		}).Error
	if err != nil {
		return err
	}
	return s.completeIfDrained(id)
}

// completeIfDrained transitions an active rollout to completed once its
// pending counter reaches zero.
func (s *RolloutService) completeIfDrained(id uuid.UUID) error {
	return s.db.Model(&UpdateRollout{}).
		Where("id = ? AND status = ? AND pending_count <= 0", id, RolloutStatusActive).
		Update("status", RolloutStatusCompleted).Error
}
