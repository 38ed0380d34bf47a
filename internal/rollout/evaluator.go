// Package rollout decides which firmware, if any, a printer should be
// offered when it subscribes or when the scheduler re-evaluates the fleet.
package rollout

import (
	"errors"
	"sort"
	"time"

	"github.com/paperminder/paperminder/internal/bucket"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/semver"
	"github.com/paperminder/paperminder/internal/wire"
	"gorm.io/gorm"
)

// Evaluator selects at most one firmware push for a printer.
type Evaluator struct {
	rollouts *database.RolloutService
	firmware *database.FirmwareService
	updates  *database.UpdateService
	baseURL  string
}

// NewEvaluator creates an evaluator over the given database handle.
func NewEvaluator(db *gorm.DB, baseURL string) *Evaluator {
	return &Evaluator{
		rollouts: database.NewRolloutService(db),
		firmware: database.NewFirmwareService(db),
		updates:  database.NewUpdateService(db),
		baseURL:  baseURL,
	}
}

// Evaluate returns the firmware_update frame the printer is eligible for
// right now, or nil. Creating the UpdateHistory row happens here, so an
// emitted frame always has a pending attempt behind it; a pending attempt
// from an earlier evaluation re-emits the same frame without a new row.
func (e *Evaluator) Evaluate(printer *database.Printer, now time.Time) (*wire.FirmwareUpdate, error) {
	if !printer.AutoUpdate {
		return nil, nil
	}

	active, err := e.rollouts.ListActive()
	if err != nil {
		return nil, err
	}

	var eligible []database.UpdateRollout
	for _, r := range active {
		if r.ScheduledFor != nil && r.ScheduledFor.After(now) {
			continue
		}
		if !e.rollouts.Matches(&r, printer) {
			continue
		}
		// Never downgrade.
		if semver.Compare(r.Version, printer.FirmwareVersion) <= 0 {
			continue
		}
		if r.RolloutType == database.RolloutTypeGradual &&
			bucket.Of(printer.ID.String()) >= r.RolloutPercentage {
			continue
		}
		eligible = append(eligible, r)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	// Highest target version wins; ties go to the most recent rollout.
	sort.SliceStable(eligible, func(i, j int) bool {
		if c := semver.Compare(eligible[i].Version, eligible[j].Version); c != 0 {
			return c > 0
		}
		return eligible[i].CreatedAt.After(eligible[j].CreatedAt)
	})
	chosen := eligible[0]

	fw, err := e.firmware.GetByVersionAndPlatform(chosen.Version, printer.Platform)
	if errors.Is(err, database.ErrFirmwareNotFound) {
		logging.DebugWithComponent(logging.ComponentRollout, "No binary for platform",
			"version", chosen.Version, "platform", printer.Platform, "printer", printer.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	frame := &wire.FirmwareUpdate{
		Type:     wire.KindFirmwareUpdate,
		Version:  fw.Version,
		Platform: fw.Platform,
		URL:      database.DownloadURL(e.baseURL, fw.Version, fw.Platform),
		MD5:      fw.MD5,
	}

	prior, err := e.updates.LatestAttempt(chosen.ID, printer.ID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		switch prior.Status {
		case database.UpdateStatusPending:
			// The printer may have missed the original offer.
			return frame, nil
		default:
			// Downloading, or a terminal attempt that is not reopened.
			return nil, nil
		}
	}

	if _, err := e.updates.Create(&chosen.ID, printer.ID, fw.Version); err != nil {
		return nil, err
	}
	return frame, nil
}
