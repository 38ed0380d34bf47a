package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserService handles user-related database operations
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// CreateUser creates a user with an already-hashed password digest.
func (s *UserService) CreateUser(email, passwordDigest string, isAdmin bool) (*User, error) {
	user := &User{
		Email:    email,
		Password: passwordDigest,
		IsAdmin:  isAdmin,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID returns a user by ID
func (s *UserService) GetUserByID(id uuid.UUID) (*User, error) {
	var user User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail returns a user by email, case-insensitively
func (s *UserService) GetUserByEmail(email string) (*User, error) {
	var user User
	if err := s.db.Where("LOWER(email) = LOWER(?)", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users ordered by creation time
func (s *UserService) ListUsers() ([]User, error) {
	var users []User
	err := s.db.Order("created_at ASC").Find(&users).Error
	return users, err
}

// TouchLastLogin records a successful login
func (s *UserService) TouchLastLogin(id uuid.UUID) error {
	now := time.Now().UTC()
	return s.db.Model(&User{}).Where("id = ?", id).Update("last_login", now).Error
}
