package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Update channels shared by firmware versions and printer preferences.
const (
	ChannelStable = "stable"
	ChannelBeta   = "beta"
	ChannelCanary = "canary"
)

// Rollout strategies.
const (
	RolloutTypeImmediate = "immediate"
	RolloutTypeGradual   = "gradual"
	RolloutTypeScheduled = "scheduled"
)

// Rollout lifecycle states.
const (
	RolloutStatusPending   = "pending"
	RolloutStatusActive    = "active"
	RolloutStatusPaused    = "paused"
	RolloutStatusCompleted = "completed"
	RolloutStatusCancelled = "cancelled"
)

// Per-printer update attempt states.
const (
	UpdateStatusPending     = "pending"
	UpdateStatusDownloading = "downloading"
	UpdateStatusCompleted   = "completed"
	UpdateStatusFailed      = "failed"
	UpdateStatusDeclined    = "declined"
)

// User represents an account that can send messages and own printers
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email    string    `gorm:"uniqueIndex;not null" json:"email"`
	Password string    `gorm:"not null" json:"-"` // bcrypt digest, never serialized
	IsAdmin  bool      `gorm:"default:false" json:"is_admin"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// BeforeCreate sets UUID if not already set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Group is a user-owned collection of users and printers
type Group struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"size:128;not null" json:"name"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Colour  string    `gorm:"size:16" json:"colour,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// GroupMembership links users into groups (junction keyed by UUID pair)
type GroupMembership struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	GroupID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PrinterGroup links printers into groups (junction keyed by UUID pair)
type PrinterGroup struct {
	PrinterID uuid.UUID `gorm:"type:uuid;primaryKey" json:"printer_id"`
	GroupID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Printer represents a registered thermal printer. The ID is the printer_id
// the device announces on its subscription handshake.
type Printer struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"` // nullable for unclaimed printers
	Name   string     `gorm:"size:128" json:"name,omitempty"`

	// Firmware tracking
	Platform        string `gorm:"size:32;default:'esp8266'" json:"platform"` // canonical form, see internal/platform
	FirmwareVersion string `gorm:"size:16;default:'0.0.0'" json:"firmware_version"`
	AutoUpdate      bool   `gorm:"default:true" json:"auto_update"`
	UpdateChannel   string `gorm:"size:16;default:'stable'" json:"update_channel"`

	// Connection status
	Online        bool       `gorm:"default:false" json:"online"`
	LastConnected *time.Time `json:"last_connected,omitempty"`
	LastIP        string     `gorm:"size:45" json:"last_ip,omitempty"`

	// Per-day message numbering; the counter resets when DailyCounterDate is
	// not the current UTC date at assignment time.
	DailyMessageNumber int        `gorm:"default:0" json:"daily_message_number"`
	DailyCounterDate   *time.Time `json:"daily_counter_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Association
	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
}

func (p *Printer) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// MessageLog is the immutable record of a routed message
type MessageLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID    uuid.UUID `gorm:"type:uuid;not null;index" json:"sender_id"`
	SenderName  string    `gorm:"size:128;not null" json:"sender_name"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	DailyNumber int       `gorm:"not null" json:"daily_number"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m *MessageLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MessageCache is a pending delivery slot for an offline printer. Rows are
// marked delivered only after the frame has been handed to the socket write
// path without error.
type MessageCache struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index" json:"recipient_id"`
	SenderName  string    `gorm:"size:128;not null" json:"sender_name"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	DailyNumber int       `gorm:"not null" json:"daily_number"`
	IsDelivered bool      `gorm:"default:false;index" json:"is_delivered"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m *MessageCache) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// FirmwareVersion is a firmware binary for one (version, platform) pair
type FirmwareVersion struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Version  string    `gorm:"size:16;not null;uniqueIndex:idx_firmware_version_platform" json:"version"`
	Platform string    `gorm:"size:32;not null;uniqueIndex:idx_firmware_version_platform" json:"platform"`
	Channel  string    `gorm:"size:16;default:'stable'" json:"channel"`

	Data     []byte `gorm:"not null" json:"-"`
	FileSize int64  `json:"file_size"`
	MD5      string `gorm:"size:32;not null" json:"md5_checksum"`
	SHA256   string `gorm:"size:64" json:"sha256_checksum,omitempty"`

	ReleaseNotes      string  `gorm:"type:text" json:"release_notes,omitempty"`
	Changelog         string  `gorm:"type:text" json:"changelog,omitempty"`
	Mandatory         bool    `gorm:"default:false" json:"mandatory"`
	MinUpgradeVersion *string `gorm:"size:16" json:"min_upgrade_version,omitempty"`

	DownloadCount int `gorm:"default:0" json:"download_count"`
	SuccessCount  int `gorm:"default:0" json:"success_count"`
	FailureCount  int `gorm:"default:0" json:"failure_count"`

	ReleasedAt   time.Time  `json:"released_at"`
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (f *FirmwareVersion) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.ReleasedAt.IsZero() {
		f.ReleasedAt = time.Now().UTC()
	}
	return nil
}

// UpdateRollout is a campaign pushing one firmware version to a subset of
// printers. Targeting arrays are stored as typed JSON columns.
type UpdateRollout struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Version string    `gorm:"size:16;not null" json:"version"`

	TargetAll        bool                         `gorm:"default:false" json:"target_all"`
	TargetUserIDs    datatypes.JSONSlice[string]  `json:"target_user_ids,omitempty"`
	TargetPrinterIDs datatypes.JSONSlice[string]  `json:"target_printer_ids,omitempty"`
	TargetChannels   datatypes.JSONSlice[string]  `json:"target_channels,omitempty"`
	MinVersion       *string                      `gorm:"size:16" json:"min_version,omitempty"`
	MaxVersion       *string                      `gorm:"size:16" json:"max_version,omitempty"`

	RolloutType       string     `gorm:"size:16;default:'immediate'" json:"rollout_type"`
	RolloutPercentage int        `gorm:"default:100" json:"rollout_percentage"`
	ScheduledFor      *time.Time `json:"scheduled_for,omitempty"`

	Status string `gorm:"size:16;default:'pending';index" json:"status"`

	TotalTargets   int `gorm:"default:0" json:"total_targets"`
	CompletedCount int `gorm:"default:0" json:"completed_count"`
	FailedCount    int `gorm:"default:0" json:"failed_count"`
	DeclinedCount  int `gorm:"default:0" json:"declined_count"`
	PendingCount   int `gorm:"default:0" json:"pending_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *UpdateRollout) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Blocked reports whether the rollout must not push updates.
func (r *UpdateRollout) Blocked() bool {
	return r.Status != RolloutStatusActive
}

// UpdateHistory is one row per (rollout, printer, attempted version)
type UpdateHistory struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RolloutID       *uuid.UUID `gorm:"type:uuid;index" json:"rollout_id,omitempty"`
	PrinterID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"printer_id"`
	FirmwareVersion string     `gorm:"size:16;not null" json:"firmware_version"`

	Status            string `gorm:"size:16;default:'pending'" json:"status"`
	LastPercent       int    `gorm:"default:0" json:"last_percent"`
	LastStatusMessage string `gorm:"type:text" json:"last_status_message,omitempty"`
	ErrorMessage      string `gorm:"type:text" json:"error_message,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (h *UpdateHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.StartedAt.IsZero() {
		h.StartedAt = time.Now().UTC()
	}
	return nil
}

// Terminal reports whether the attempt has reached an absorbing state.
func (h *UpdateHistory) Terminal() bool {
	switch h.Status {
	case UpdateStatusCompleted, UpdateStatusFailed, UpdateStatusDeclined:
		return true
	}
	return false
}

// GetAllModels returns all models for auto-migration
func GetAllModels() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&GroupMembership{},
		&PrinterGroup{},
		&Printer{},
		&MessageLog{},
		&MessageCache{},
		&FirmwareVersion{},
		&UpdateRollout{},
		&UpdateHistory{},
	}
}
