package hub

import (
	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/wire"
)

// The update tracker records firmware response frames against the printer's
// open UpdateHistory row and keeps rollout counters in step.

func (h *Hub) handleFirmwareProgress(printerID uuid.UUID, f *wire.FirmwareProgress) {
	row, err := h.updates.LatestOpenForPrinter(printerID)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Progress lookup failed",
			"printer", printerID, "error", err)
		return
	}
	if row == nil {
		logging.DebugWithComponent(logging.ComponentTracker, "Progress with no open attempt",
			"printer", printerID, "percent", f.Percent)
		return
	}

	if err := h.updates.SetProgress(row.ID, f.Percent, f.Status); err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Failed to record progress",
			"printer", printerID, "error", err)
	}
}

func (h *Hub) handleFirmwareComplete(printerID uuid.UUID, f *wire.FirmwareComplete) {
	row, err := h.updates.LatestOpenForPrinter(printerID)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Complete lookup failed",
			"printer", printerID, "error", err)
		return
	}

	if err := h.printers.SetFirmwareVersion(printerID, f.Version); err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Failed to set printer firmware version",
			"printer", printerID, "version", f.Version, "error", err)
	}

	printer, err := h.printers.GetByID(printerID)
	if err == nil {
		if err := h.firmware.RecordSuccess(f.Version, printer.Platform); err != nil {
			logging.WarnWithComponent(logging.ComponentTracker, "Failed to bump firmware success counter",
				"version", f.Version, "error", err)
		}
	}

	if row == nil {
		logging.DebugWithComponent(logging.ComponentTracker, "Complete with no open attempt",
			"printer", printerID, "version", f.Version)
		return
	}

	if err := h.updates.MarkCompleted(row.ID); err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Failed to close attempt",
			"printer", printerID, "error", err)
		return
	}
	if row.RolloutID != nil {
		if err := h.rollouts.IncrementCompleted(*row.RolloutID); err != nil {
			logging.ErrorWithComponent(logging.ComponentTracker, "Failed to bump rollout counters",
				"rollout", *row.RolloutID, "error", err)
		}
	}

	logging.InfoWithComponent(logging.ComponentTracker, "Firmware update completed",
		"printer", printerID, "version", f.Version)
}

func (h *Hub) handleFirmwareFailed(printerID uuid.UUID, f *wire.FirmwareFailed) {
	row, err := h.updates.LatestOpenForPrinter(printerID)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Failure lookup failed",
			"printer", printerID, "error", err)
		return
	}
	if row == nil {
		logging.DebugWithComponent(logging.ComponentTracker, "Failure with no open attempt",
			"printer", printerID, "error", f.Error)
		return
	}

	if err := h.updates.MarkFailed(row.ID, f.Error); err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Failed to record failure",
			"printer", printerID, "error", err)
		return
	}

	printer, err := h.printers.GetByID(printerID)
	if err == nil {
		if err := h.firmware.RecordFailure(row.FirmwareVersion, printer.Platform); err != nil {
			logging.WarnWithComponent(logging.ComponentTracker, "Failed to bump firmware failure counter",
				"version", row.FirmwareVersion, "error", err)
		}
	}

	if row.RolloutID != nil {
		if err := h.rollouts.IncrementFailed(*row.RolloutID); err != nil {
			logging.ErrorWithComponent(logging.ComponentTracker, "Failed to bump rollout counters",
				"rollout", *row.RolloutID, "error", err)
		}
	}

	logging.WarnWithComponent(logging.ComponentTracker, "Firmware update failed",
		"printer", printerID, "error", f.Error)
}

func (h *Hub) handleFirmwareDeclined(printerID uuid.UUID, f *wire.FirmwareDeclined) {
	row, err := h.updates.LatestOpenForPrinter(printerID)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Decline lookup failed",
			"printer", printerID, "error", err)
		return
	}

	// The printer turning auto-update off is persisted regardless of
	// whether an attempt is open.
	if !f.AutoUpdate {
		if err := h.printers.SetAutoUpdate(printerID, false); err != nil {
			logging.ErrorWithComponent(logging.ComponentTracker, "Failed to persist auto_update=false",
				"printer", printerID, "error", err)
		}
	}

	if row == nil {
		logging.DebugWithComponent(logging.ComponentTracker, "Decline with no open attempt",
			"printer", printerID, "version", f.Version)
		return
	}

	if err := h.updates.MarkDeclined(row.ID); err != nil {
		logging.ErrorWithComponent(logging.ComponentTracker, "Failed to record decline",
			"printer", printerID, "error", err)
		return
	}
	if row.RolloutID != nil {
		if err := h.rollouts.IncrementDeclined(*row.RolloutID); err != nil {
			logging.ErrorWithComponent(logging.ComponentTracker, "Failed to bump rollout counters",
				"rollout", *row.RolloutID, "error", err)
		}
	}

	logging.InfoWithComponent(logging.ComponentTracker, "Firmware update declined",
		"printer", printerID, "version", f.Version, "auto_update", f.AutoUpdate)
}
