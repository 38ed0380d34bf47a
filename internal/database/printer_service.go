package database

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/platform"
	"gorm.io/gorm"
)

// PrinterService handles printer-related database operations
type PrinterService struct {
	db *gorm.DB

	// Per-printer locks serialize daily-number assignment. The hub is a
	// process singleton, so an in-process lock is the total order.
	counterLocks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewPrinterService creates a new printer service
func NewPrinterService(db *gorm.DB) *PrinterService {
	return &PrinterService{db: db}
}

// Register creates a printer row. The platform is canonicalized before
// storage; an empty ID is assigned in BeforeCreate.
func (s *PrinterService) Register(printer *Printer) error {
	printer.Platform = canonicalOrDefault(printer.Platform)
	if printer.FirmwareVersion == "" {
		printer.FirmwareVersion = "0.0.0"
	}
	if printer.UpdateChannel == "" {
		printer.UpdateChannel = ChannelStable
	}
	// gorm writes the column default (true) in place of a false auto_update
	// on insert, so a false value is stored with a follow-up update.
	autoUpdate := printer.AutoUpdate
	if err := s.db.Create(printer).Error; err != nil {
		return err
	}
	if !autoUpdate {
		if err := s.SetAutoUpdate(printer.ID, false); err != nil {
			return err
		}
		printer.AutoUpdate = false
	}
	return nil
}

// GetByID returns a printer by UUID
func (s *PrinterService) GetByID(id uuid.UUID) (*Printer, error) {
	var printer Printer
	if err := s.db.First(&printer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPrinterNotFound
		}
		return nil, err
	}
	return &printer, nil
}

// List returns all printers
func (s *PrinterService) List() ([]Printer, error) {
	var printers []Printer
	err := s.db.Order("created_at ASC").Find(&printers).Error
	return printers, err
}

// ListByUser returns all printers owned by a user
func (s *PrinterService) ListByUser(userID uuid.UUID) ([]Printer, error) {
	var printers []Printer
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&printers).Error
	return printers, err
}

// ListByChannels returns printers subscribed to any of the given channels
func (s *PrinterService) ListByChannels(channels []string) ([]Printer, error) {
	var printers []Printer
	err := s.db.Where("update_channel IN ?", channels).Find(&printers).Error
	return printers, err
}

// ListByIDs returns printers whose UUID is in ids
func (s *PrinterService) ListByIDs(ids []uuid.UUID) ([]Printer, error) {
	var printers []Printer
	err := s.db.Where("id IN ?", ids).Find(&printers).Error
	return printers, err
}

// ListByUserIDs returns printers owned by any of the given users
func (s *PrinterService) ListByUserIDs(userIDs []uuid.UUID) ([]Printer, error) {
	var printers []Printer
	err := s.db.Where("user_id IN ?", userIDs).Find(&printers).Error
	return printers, err
}

// Update applies user-editable fields
func (s *PrinterService) Update(id uuid.UUID, name *string, autoUpdate *bool, channel *string) (*Printer, error) {
	printer, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if name != nil {
		updates["name"] = *name
	}
	if autoUpdate != nil {
		updates["auto_update"] = *autoUpdate
	}
	if channel != nil {
		updates["update_channel"] = *channel
	}
	if len(updates) == 0 {
		return printer, nil
	}

	if err := s.db.Model(printer).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// Delete removes a printer and its group links
func (s *PrinterService) Delete(id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("printer_id = ?", id).Delete(&PrinterGroup{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&Printer{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPrinterNotFound
		}
		return nil
	})
}

// ApplySubscription upserts printer state from a subscription handshake. An
// unknown printer_id creates an unclaimed printer, so a device can announce
// itself before a user registers it.
func (s *PrinterService) ApplySubscription(id uuid.UUID, name, plat, firmwareVersion string, autoUpdate bool, channel, ip string) (*Printer, error) {
	printer, err := s.GetByID(id)
	if errors.Is(err, ErrPrinterNotFound) {
		printer = &Printer{
			ID:              id,
			Name:            name,
			Platform:        canonicalOrDefault(plat),
			FirmwareVersion: defaultVersion(firmwareVersion),
			AutoUpdate:      autoUpdate,
			UpdateChannel:   defaultChannel(channel),
		}
		if err := s.db.Create(printer).Error; err != nil {
			return nil, err
		}
		if !autoUpdate {
			if err := s.SetAutoUpdate(id, false); err != nil {
				return nil, err
			}
			printer.AutoUpdate = false
		}
	} else if err != nil {
		return nil, err
	} else {
		updates := map[string]interface{}{
			"platform":         canonicalOrDefault(plat),
			"firmware_version": defaultVersion(firmwareVersion),
			"auto_update":      autoUpdate,
			"update_channel":   defaultChannel(channel),
		}
		if name != "" && printer.Name == "" {
			updates["name"] = name
		}
		if err := s.db.Model(printer).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	if err := s.SetConnectionStatus(id, true, ip); err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// SetConnectionStatus records online state. Going online stamps
// last_connected and, when known, last_ip.
func (s *PrinterService) SetConnectionStatus(id uuid.UUID, online bool, ip string) error {
	updates := map[string]interface{}{"online": online}
	if online {
		updates["last_connected"] = time.Now().UTC()
		if ip != "" {
			updates["last_ip"] = ip
		}
	}
	result := s.db.Model(&Printer{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPrinterNotFound
	}
	return nil
}

// SetFirmwareVersion records a completed firmware install
func (s *PrinterService) SetFirmwareVersion(id uuid.UUID, version string) error {
	return s.db.Model(&Printer{}).Where("id = ?", id).Update("firmware_version", version).Error
}

// SetAutoUpdate persists the printer's auto-update preference
func (s *PrinterService) SetAutoUpdate(id uuid.UUID, enabled bool) error {
	return s.db.Model(&Printer{}).Where("id = ?", id).Update("auto_update", enabled).Error
}

// NextDailyNumber assigns the next daily message number for a printer under
// a per-printer lock. The counter resets when the stored counter date is not
// today's UTC date; the first message of a day is numbered 1.
func (s *PrinterService) NextDailyNumber(id uuid.UUID) (int, error) {
	lock := s.counterLock(id)
	lock.Lock()
	defer lock.Unlock()

	var number int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var printer Printer
		if err := tx.First(&printer, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPrinterNotFound
			}
			return err
		}

		today := utcMidnight(time.Now())
		if printer.DailyCounterDate == nil || !printer.DailyCounterDate.Equal(today) {
			number = 1
		} else {
			number = printer.DailyMessageNumber + 1
		}

		return tx.Model(&printer).Updates(map[string]interface{}{
			"daily_message_number": number,
			"daily_counter_date":   today,
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return number, nil
}

func (s *PrinterService) counterLock(id uuid.UUID) *sync.Mutex {
	if lock, ok := s.counterLocks.Load(id); ok {
		return lock.(*sync.Mutex)
	}
	lock, _ := s.counterLocks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func utcMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func canonicalOrDefault(p string) string {
	if canonical := platform.Normalize(p); canonical != "" {
		return canonical
	}
	return "esp8266"
}

func defaultVersion(v string) string {
	if v == "" {
		return "0.0.0"
	}
	return v
}

func defaultChannel(c string) string {
	if c == "" {
		return ChannelStable
	}
	return c
}
