package rollout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/bucket"
	"github.com/paperminder/paperminder/internal/database"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const baseURL = "http://localhost:8000"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.RunMigrations(db, "TEST"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func registerPrinter(t *testing.T, db *gorm.DB, mutate func(*database.Printer)) *database.Printer {
	t.Helper()
	printer := &database.Printer{
		Name:            "unit",
		Platform:        "esp8266",
		FirmwareVersion: "1.0.0",
		AutoUpdate:      true,
		UpdateChannel:   database.ChannelStable,
	}
	if mutate != nil {
		mutate(printer)
	}
	if err := database.NewPrinterService(db).Register(printer); err != nil {
		t.Fatalf("register printer: %v", err)
	}
	return printer
}

func addFirmware(t *testing.T, db *gorm.DB, version, plat string) *database.FirmwareVersion {
	t.Helper()
	fw := &database.FirmwareVersion{
		Version:  version,
		Platform: plat,
		Data:     []byte{0xde, 0xad},
		FileSize: 2,
		MD5:      "4f41243847da693a4f356c0486114bc6",
	}
	if err := database.NewFirmwareService(db).Create(fw); err != nil {
		t.Fatalf("create firmware: %v", err)
	}
	return fw
}

func activeRollout(t *testing.T, db *gorm.DB, mutate func(*database.UpdateRollout)) *database.UpdateRollout {
	t.Helper()
	svc := database.NewRolloutService(db)
	rollout := &database.UpdateRollout{
		Version:   "1.5.0",
		TargetAll: true,
	}
	if mutate != nil {
		mutate(rollout)
	}
	if err := svc.Create(rollout); err != nil {
		t.Fatalf("create rollout: %v", err)
	}
	if _, err := svc.SetStatus(rollout.ID, database.RolloutStatusActive); err != nil {
		t.Fatalf("activate rollout: %v", err)
	}
	return rollout
}

func TestEvaluateAutoUpdateDisabled(t *testing.T) {
	db := newTestDB(t)
	printer := registerPrinter(t, db, func(p *database.Printer) { p.AutoUpdate = false })
	addFirmware(t, db, "1.5.0", "esp8266")
	activeRollout(t, db, nil)

	frame, err := NewEvaluator(db, baseURL).Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame != nil {
		t.Errorf("auto_update=false must emit nothing, got %+v", frame)
	}
}

func TestEvaluateEmitsFirmwareUpdate(t *testing.T) {
	db := newTestDB(t)
	printer := registerPrinter(t, db, nil)
	fw := addFirmware(t, db, "1.5.0", "esp8266")
	rollout := activeRollout(t, db, nil)

	frame, err := NewEvaluator(db, baseURL).Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame == nil {
		t.Fatal("expected a firmware push")
	}
	if frame.Version != "1.5.0" || frame.MD5 != fw.MD5 {
		t.Errorf("frame = %+v", frame)
	}
	want := baseURL + "/api/firmware/download/1.5.0?platform=esp8266"
	if frame.URL != want {
		t.Errorf("url = %q, want %q", frame.URL, want)
	}

	attempt, err := database.NewUpdateService(db).LatestAttempt(rollout.ID, printer.ID)
	if err != nil {
		t.Fatalf("LatestAttempt: %v", err)
	}
	if attempt == nil || attempt.Status != database.UpdateStatusPending {
		t.Errorf("attempt = %+v, want pending row", attempt)
	}
}

func TestEvaluateNeverDowngrades(t *testing.T) {
	db := newTestDB(t)
	printer := registerPrinter(t, db, func(p *database.Printer) { p.FirmwareVersion = "1.5.0" })
	addFirmware(t, db, "1.5.0", "esp8266")
	activeRollout(t, db, nil)

	frame, err := NewEvaluator(db, baseURL).Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame != nil {
		t.Errorf("equal version must not be offered, got %+v", frame)
	}
}

func TestEvaluatePlatformMismatch(t *testing.T) {
	db := newTestDB(t)
	c3 := registerPrinter(t, db, func(p *database.Printer) { p.Platform = "esp32-c3" })
	esp := registerPrinter(t, db, nil)
	addFirmware(t, db, "1.5.0", "esp8266")
	rollout := activeRollout(t, db, nil)

	ev := NewEvaluator(db, baseURL)

	frame, err := ev.Evaluate(c3, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame != nil {
		t.Errorf("no esp32-c3 binary exists; got %+v", frame)
	}
	attempt, _ := database.NewUpdateService(db).LatestAttempt(rollout.ID, c3.ID)
	if attempt != nil {
		t.Errorf("history must stay unchanged on platform miss, got %+v", attempt)
	}

	frame, err = ev.Evaluate(esp, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame == nil {
		t.Error("esp8266 subscriber should receive the push")
	}
}

func TestEvaluateGradualBucketing(t *testing.T) {
	db := newTestDB(t)
	printer := registerPrinter(t, db, func(p *database.Printer) {
		id, _ := uuid.Parse("00000000-0000-0000-0000-000000000001")
		p.ID = id
	})
	addFirmware(t, db, "1.5.0", "esp8266")

	b := bucket.Of(printer.ID.String())

	pct := b + 1 // printer inside the cohort
	if pct > 100 {
		pct = 100
	}
	activeRollout(t, db, func(r *database.UpdateRollout) {
		r.TargetAll = false
		r.TargetChannels = datatypes.JSONSlice[string]{database.ChannelStable}
		r.RolloutType = database.RolloutTypeGradual
		r.RolloutPercentage = pct
	})

	frame, err := NewEvaluator(db, baseURL).Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame == nil {
		t.Fatalf("bucket %d < percentage %d should be included", b, pct)
	}
}

func TestEvaluateGradualBoundaries(t *testing.T) {
	db := newTestDB(t)
	addFirmware(t, db, "1.5.0", "esp8266")

	// percentage 100 matches everyone
	full := activeRollout(t, db, func(r *database.UpdateRollout) {
		r.RolloutType = database.RolloutTypeGradual
		r.RolloutPercentage = 100
	})
	printer := registerPrinter(t, db, nil)
	ev := NewEvaluator(db, baseURL)
	frame, err := ev.Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame == nil {
		t.Error("percentage 100 must match every printer")
	}

	// percentage 0 matches nobody (exercised via SetPercentage since
	// creation requires >= 1)
	rolloutSvc := database.NewRolloutService(db)
	if err := rolloutSvc.SetPercentage(full.ID, 0); err != nil {
		t.Fatalf("SetPercentage: %v", err)
	}
	other := registerPrinter(t, db, nil)
	frame, err = ev.Evaluate(other, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame != nil {
		t.Errorf("percentage 0 must match no printer, got %+v", frame)
	}
}

func TestEvaluatePausedRolloutBlocked(t *testing.T) {
	db := newTestDB(t)
	printer := registerPrinter(t, db, nil)
	addFirmware(t, db, "1.5.0", "esp8266")
	rollout := activeRollout(t, db, nil)

	svc := database.NewRolloutService(db)
	if _, err := svc.SetStatus(rollout.ID, database.RolloutStatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}

	ev := NewEvaluator(db, baseURL)
	frame, err := ev.Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame != nil {
		t.Errorf("paused rollout must not push, got %+v", frame)
	}

	// Resuming makes the next evaluation emit.
	if _, err := svc.SetStatus(rollout.ID, database.RolloutStatusActive); err != nil {
		t.Fatalf("resume: %v", err)
	}
	frame, err = ev.Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame == nil {
		t.Error("resumed rollout should push on next evaluation")
	}
}

func TestEvaluateIdempotentReEmit(t *testing.T) {
	db := newTestDB(t)
	printer := registerPrinter(t, db, nil)
	addFirmware(t, db, "1.5.0", "esp8266")
	rollout := activeRollout(t, db, nil)

	ev := NewEvaluator(db, baseURL)
	updates := database.NewUpdateService(db)

	first, err := ev.Evaluate(printer, time.Now())
	if err != nil || first == nil {
		t.Fatalf("first Evaluate = %+v, %v", first, err)
	}

	// Re-subscribing with unchanged state re-emits for the pending attempt
	// without creating a second row.
	second, err := ev.Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if second == nil || second.Version != first.Version {
		t.Fatalf("second Evaluate = %+v, want re-emit", second)
	}

	rows, err := updates.HistoryForRollout(rollout.ID)
	if err != nil {
		t.Fatalf("HistoryForRollout: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("history rows = %d, want 1", len(rows))
	}

	// Once the attempt moves past pending, nothing is re-emitted.
	if err := updates.SetProgress(rows[0].ID, 10, "downloading"); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	third, err := ev.Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("third Evaluate: %v", err)
	}
	if third != nil {
		t.Errorf("downloading attempt must suppress re-emit, got %+v", third)
	}
}

func TestEvaluatePicksHighestVersion(t *testing.T) {
	db := newTestDB(t)
	printer := registerPrinter(t, db, nil)
	addFirmware(t, db, "1.5.0", "esp8266")
	addFirmware(t, db, "2.0.0", "esp8266")
	activeRollout(t, db, func(r *database.UpdateRollout) { r.Version = "1.5.0" })
	activeRollout(t, db, func(r *database.UpdateRollout) { r.Version = "2.0.0" })

	frame, err := NewEvaluator(db, baseURL).Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame == nil || frame.Version != "2.0.0" {
		t.Errorf("frame = %+v, want version 2.0.0", frame)
	}
}

func TestEvaluateScheduledGate(t *testing.T) {
	db := newTestDB(t)
	printer := registerPrinter(t, db, nil)
	addFirmware(t, db, "1.5.0", "esp8266")

	future := time.Now().UTC().Add(time.Hour)
	activeRollout(t, db, func(r *database.UpdateRollout) {
		r.RolloutType = database.RolloutTypeScheduled
		r.ScheduledFor = &future
	})

	frame, err := NewEvaluator(db, baseURL).Evaluate(printer, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame != nil {
		t.Errorf("scheduled_for in the future must gate the push, got %+v", frame)
	}

	frame, err = NewEvaluator(db, baseURL).Evaluate(printer, future.Add(time.Minute))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if frame == nil {
		t.Error("push expected once the schedule time has passed")
	}
}
