package database

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/platform"
	"gorm.io/gorm"
)

// FirmwareService provides database operations for firmware management
type FirmwareService struct {
	db *gorm.DB
}

// NewFirmwareService creates a new firmware service
func NewFirmwareService(db *gorm.DB) *FirmwareService {
	return &FirmwareService{db: db}
}

// Create inserts a firmware version. The (version, platform) pair must be
// unique across all accepted platform spellings.
func (s *FirmwareService) Create(fw *FirmwareVersion) error {
	fw.Platform = platform.Normalize(fw.Platform)
	if fw.Channel == "" {
		fw.Channel = ChannelStable
	}

	var existing FirmwareVersion
	err := s.db.
		Where("version = ? AND platform IN ?", fw.Version, platform.Variants(fw.Platform)).
		First(&existing).Error
	if err == nil {
		return ErrDuplicateVersion
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return s.db.Create(fw).Error
}

// GetByID returns a firmware version by ID
func (s *FirmwareService) GetByID(id uuid.UUID) (*FirmwareVersion, error) {
	var fw FirmwareVersion
	if err := s.db.First(&fw, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFirmwareNotFound
		}
		return nil, err
	}
	return &fw, nil
}

// GetByVersionAndPlatform returns the firmware for a (version, platform)
// pair, widening the platform to all accepted spellings.
func (s *FirmwareService) GetByVersionAndPlatform(version, plat string) (*FirmwareVersion, error) {
	variants := platform.Variants(plat)
	if len(variants) == 0 {
		return nil, ErrFirmwareNotFound
	}

	var fw FirmwareVersion
	err := s.db.
		Where("version = ? AND platform IN ?", version, variants).
		First(&fw).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFirmwareNotFound
		}
		return nil, err
	}
	return &fw, nil
}

// Exists reports whether a binary exists for the (version, platform) pair
func (s *FirmwareService) Exists(version, plat string) (bool, error) {
	_, err := s.GetByVersionAndPlatform(version, plat)
	if errors.Is(err, ErrFirmwareNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ExistsVersion reports whether any platform build exists for a version
func (s *FirmwareService) ExistsVersion(version string) (bool, error) {
	var count int64
	if err := s.db.Model(&FirmwareVersion{}).Where("version = ?", version).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns firmware versions, optionally filtered by channel, newest
// release first.
func (s *FirmwareService) List(channel string) ([]FirmwareVersion, error) {
	query := s.db.Order("released_at DESC")
	if channel != "" {
		query = query.Where("channel = ?", channel)
	}
	var versions []FirmwareVersion
	err := query.Find(&versions).Error
	return versions, err
}

// Delete removes a firmware version
func (s *FirmwareService) Delete(id uuid.UUID) error {
	result := s.db.Delete(&FirmwareVersion{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFirmwareNotFound
	}
	return nil
}

// Deprecate stamps deprecated_at on every platform build of a version
func (s *FirmwareService) Deprecate(version string) error {
	now := time.Now().UTC()
	result := s.db.Model(&FirmwareVersion{}).
		Where("version = ? AND deprecated_at IS NULL", version).
		Update("deprecated_at", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFirmwareNotFound
	}
	return nil
}

// RecordDownload atomically bumps the download counter
func (s *FirmwareService) RecordDownload(id uuid.UUID) error {
	return s.db.Model(&FirmwareVersion{}).Where("id = ?", id).
		Update("download_count", gorm.Expr("download_count + 1")).Error
}

// RecordSuccess atomically bumps the success counter for the build a printer
// reports having installed.
func (s *FirmwareService) RecordSuccess(version, plat string) error {
	variants := platform.Variants(plat)
	if len(variants) == 0 {
		return nil
	}
	return s.db.Model(&FirmwareVersion{}).
		Where("version = ? AND platform IN ?", version, variants).
		Update("success_count", gorm.Expr("success_count + 1")).Error
}

// RecordFailure atomically bumps the failure counter
func (s *FirmwareService) RecordFailure(version, plat string) error {
	variants := platform.Variants(plat)
	if len(variants) == 0 {
		return nil
	}
	return s.db.Model(&FirmwareVersion{}).
		Where("version = ? AND platform IN ?", version, variants).
		Update("failure_count", gorm.Expr("failure_count + 1")).Error
}

// DownloadURL returns the stable download endpoint for a (version, platform)
// pair under the configured base URL.
func DownloadURL(baseURL, version, plat string) string {
	return fmt.Sprintf("%s/api/firmware/download/%s?platform=%s",
		baseURL, url.PathEscape(version), url.QueryEscape(plat))
}
