package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageService handles message log and cache database operations
type MessageService struct {
	db *gorm.DB
}

// NewMessageService creates a new message service
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// Log persists the immutable record of a routed message
func (s *MessageService) Log(senderID uuid.UUID, senderName string, recipientID uuid.UUID, body string, dailyNumber int) (*MessageLog, error) {
	entry := &MessageLog{
		SenderID:    senderID,
		SenderName:  senderName,
		RecipientID: recipientID,
		Body:        body,
		DailyNumber: dailyNumber,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// Cache stores a message for an offline recipient
func (s *MessageService) Cache(recipientID uuid.UUID, senderName, body string, dailyNumber int) (*MessageCache, error) {
	entry := &MessageCache{
		RecipientID: recipientID,
		SenderName:  senderName,
		Body:        body,
		DailyNumber: dailyNumber,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// UndeliveredCache returns pending cache rows for a recipient in insertion
// order.
func (s *MessageService) UndeliveredCache(recipientID uuid.UUID) ([]MessageCache, error) {
	var rows []MessageCache
	err := s.db.
		Where("recipient_id = ? AND is_delivered = ?", recipientID, false).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// MarkDelivered flags a single cache row as delivered
func (s *MessageService) MarkDelivered(id uuid.UUID) error {
	return s.db.Model(&MessageCache{}).Where("id = ?", id).Update("is_delivered", true).Error
}

// ClearOldCache deletes delivered cache rows older than the retention window
// and returns the count removed.
func (s *MessageService) ClearOldCache(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result := s.db.
		Where("created_at < ? AND is_delivered = ?", cutoff, true).
		Delete(&MessageCache{})
	return result.RowsAffected, result.Error
}

// Received returns messages delivered to a recipient, newest first
func (s *MessageService) Received(recipientID uuid.UUID, limit, offset int) ([]MessageLog, error) {
	var logs []MessageLog
	err := s.db.
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&logs).Error
	return logs, err
}

// Sent returns messages sent by a user, newest first
func (s *MessageService) Sent(senderID uuid.UUID, limit, offset int) ([]MessageLog, error) {
	var logs []MessageLog
	err := s.db.
		Where("sender_id = ?", senderID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&logs).Error
	return logs, err
}
