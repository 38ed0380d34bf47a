package database

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GroupService handles group and membership database operations. Printers,
// groups and users form a many-to-many graph represented by junction tables.
type GroupService struct {
	db *gorm.DB
}

// NewGroupService creates a new group service
func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{db: db}
}

// CreateGroup creates a group owned by a user
func (s *GroupService) CreateGroup(name string, ownerID uuid.UUID, colour string) (*Group, error) {
	group := &Group{
		Name:    name,
		OwnerID: ownerID,
		Colour:  colour,
	}
	if err := s.db.Create(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

// GetGroupByID returns a group by ID
func (s *GroupService) GetGroupByID(id uuid.UUID) (*Group, error) {
	var group Group
	if err := s.db.First(&group, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

// GetGroupsByOwner returns all groups owned by a user
func (s *GroupService) GetGroupsByOwner(ownerID uuid.UUID) ([]Group, error) {
	var groups []Group
	err := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&groups).Error
	return groups, err
}

// DeleteGroup removes a group and its memberships
func (s *GroupService) DeleteGroup(id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&PrinterGroup{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&Group{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrGroupNotFound
		}
		return nil
	})
}

// AddUserToGroup adds a user to a group, idempotently
func (s *GroupService) AddUserToGroup(userID, groupID uuid.UUID) error {
	membership := GroupMembership{UserID: userID, GroupID: groupID}
	err := s.db.Create(&membership).Error
	if err != nil && s.db.Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&GroupMembership{}).Error == nil {
		return nil
	}
	return err
}

// RemoveUserFromGroup removes a user from a group
func (s *GroupService) RemoveUserFromGroup(userID, groupID uuid.UUID) error {
	return s.db.Where("user_id = ? AND group_id = ?", userID, groupID).Delete(&GroupMembership{}).Error
}

// AddPrinterToGroup adds a printer to a group, idempotently
func (s *GroupService) AddPrinterToGroup(printerID, groupID uuid.UUID) error {
	link := PrinterGroup{PrinterID: printerID, GroupID: groupID}
	err := s.db.Create(&link).Error
	if err != nil && s.db.Where("printer_id = ? AND group_id = ?", printerID, groupID).
		First(&PrinterGroup{}).Error == nil {
		return nil
	}
	return err
}

// RemovePrinterFromGroup removes a printer from a group
func (s *GroupService) RemovePrinterFromGroup(printerID, groupID uuid.UUID) error {
	return s.db.Where("printer_id = ? AND group_id = ?", printerID, groupID).Delete(&PrinterGroup{}).Error
}

// GetGroupPrinters returns all printers linked to a group
func (s *GroupService) GetGroupPrinters(groupID uuid.UUID) ([]Printer, error) {
	var printers []Printer
	err := s.db.
		Joins("JOIN printer_groups ON printer_groups.printer_id = printers.id").
		Where("printer_groups.group_id = ?", groupID).
		Find(&printers).Error
	return printers, err
}

// GetGroupMembers returns all users in a group
func (s *GroupService) GetGroupMembers(groupID uuid.UUID) ([]User, error) {
	var users []User
	err := s.db.
		Joins("JOIN group_memberships ON group_memberships.user_id = users.id").
		Where("group_memberships.group_id = ?", groupID).
		Find(&users).Error
	return users, err
}
