package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/logging"
	"gorm.io/datatypes"
)

type rolloutTargetSpec struct {
	All        bool     `json:"all"`
	UserIDs    []string `json:"user_ids"`
	PrinterIDs []string `json:"printer_ids"`
	Channels   []string `json:"channels"`
	MinVersion *string  `json:"min_version"`
	MaxVersion *string  `json:"max_version"`
}

type rolloutCreateRequest struct {
	Version           string            `json:"version" binding:"required"`
	Target            rolloutTargetSpec `json:"target"`
	RolloutType       string            `json:"rollout_type"`
	RolloutPercentage int               `json:"rollout_percentage"`
	ScheduledFor      *time.Time        `json:"scheduled_for"`
}

// CreateRolloutHandler creates a rollout in pending state
func CreateRolloutHandler(c *gin.Context) {
	var req rolloutCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rollout request"})
		return
	}

	db := database.GetDB()

	// The target version must have at least one uploaded build.
	exists, err := database.NewFirmwareService(db).ExistsVersion(req.Version)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check firmware version"})
		return
	}
	if !exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No firmware uploaded for target version"})
		return
	}

	if req.RolloutType == "" {
		req.RolloutType = database.RolloutTypeImmediate
	}
	if req.RolloutPercentage == 0 {
		req.RolloutPercentage = 100
	}

	rollout := &database.UpdateRollout{
		Version:           req.Version,
		TargetAll:         req.Target.All,
		TargetUserIDs:     datatypes.NewJSONSlice(req.Target.UserIDs),
		TargetPrinterIDs:  datatypes.NewJSONSlice(req.Target.PrinterIDs),
		TargetChannels:    datatypes.NewJSONSlice(req.Target.Channels),
		MinVersion:        req.Target.MinVersion,
		MaxVersion:        req.Target.MaxVersion,
		RolloutType:       req.RolloutType,
		RolloutPercentage: req.RolloutPercentage,
		ScheduledFor:      req.ScheduledFor,
	}

	if err := database.NewRolloutService(db).Create(rollout); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logging.InfoWithComponent(logging.ComponentRollout, "Rollout created",
		"rollout", rollout.ID, "version", rollout.Version, "targets", rollout.TotalTargets)
	c.JSON(http.StatusCreated, rollout)
}

// ListRolloutsHandler returns rollouts, optionally filtered by ?status=
func ListRolloutsHandler(c *gin.Context) {
	rollouts, err := database.NewRolloutService(database.GetDB()).List(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rollouts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollouts": rollouts})
}

// GetRolloutHandler returns a rollout with its per-printer history
func GetRolloutHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rollout ID"})
		return
	}

	db := database.GetDB()
	rollout, err := database.NewRolloutService(db).GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Rollout not found"})
		return
	}

	history, err := database.NewUpdateService(db).HistoryForRollout(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rollout history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rollout": rollout, "targets": history})
}

func setRolloutStatus(c *gin.Context, status string) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rollout ID"})
		return
	}

	rollout, err := database.NewRolloutService(database.GetDB()).SetStatus(id, status)
	switch {
	case errors.Is(err, database.ErrRolloutNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Rollout not found"})
	case errors.Is(err, database.ErrBadTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rollout"})
	default:
		c.JSON(http.StatusOK, rollout)
	}
}

// ActivateRolloutHandler transitions pending -> active
func ActivateRolloutHandler(c *gin.Context) { setRolloutStatus(c, database.RolloutStatusActive) }

// PauseRolloutHandler transitions active -> paused
func PauseRolloutHandler(c *gin.Context) { setRolloutStatus(c, database.RolloutStatusPaused) }

// ResumeRolloutHandler transitions paused -> active
func ResumeRolloutHandler(c *gin.Context) { setRolloutStatus(c, database.RolloutStatusActive) }

// CancelRolloutHandler transitions any non-terminal state -> cancelled
func CancelRolloutHandler(c *gin.Context) { setRolloutStatus(c, database.RolloutStatusCancelled) }

type percentageRequest struct {
	Percentage int `json:"percentage" binding:"min=0,max=100"`
}

// SetRolloutPercentageHandler widens or narrows a gradual rollout
func SetRolloutPercentageHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rollout ID"})
		return
	}

	var req percentageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid percentage"})
		return
	}

	svc := database.NewRolloutService(database.GetDB())
	if err := svc.SetPercentage(id, req.Percentage); err != nil {
		if errors.Is(err, database.ErrRolloutNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rollout not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollout_percentage": req.Percentage})
}

// DeleteRolloutHandler removes a rollout
func DeleteRolloutHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rollout ID"})
		return
	}

	if err := database.NewRolloutService(database.GetDB()).Delete(id); err != nil {
		if errors.Is(err, database.ErrRolloutNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rollout not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rollout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
