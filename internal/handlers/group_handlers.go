package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/auth"
	"github.com/paperminder/paperminder/internal/database"
)

type createGroupRequest struct {
	Name   string `json:"name" binding:"required"`
	Colour string `json:"colour"`
}

// CreateGroupHandler creates a group owned by the caller
func CreateGroupHandler(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group request"})
		return
	}

	group, err := database.NewGroupService(database.GetDB()).CreateGroup(req.Name, user.ID, req.Colour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}
	c.JSON(http.StatusCreated, group)
}

// ListGroupsHandler returns the caller's groups
func ListGroupsHandler(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	groups, err := database.NewGroupService(database.GetDB()).GetGroupsByOwner(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// DeleteGroupHandler removes a group the caller owns
func DeleteGroupHandler(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	svc := database.NewGroupService(database.GetDB())
	group, err := svc.GetGroupByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if group.OwnerID != user.ID && !user.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not the group owner"})
		return
	}

	if err := svc.DeleteGroup(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type groupMemberRequest struct {
	UserID    *uuid.UUID `json:"user_id"`
	PrinterID *uuid.UUID `json:"printer_id"`
}

// AddGroupMemberHandler links a user or printer into a group
func AddGroupMemberHandler(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req groupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.UserID == nil && req.PrinterID == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id or printer_id is required"})
		return
	}

	svc := database.NewGroupService(database.GetDB())
	if req.UserID != nil {
		err = svc.AddUserToGroup(*req.UserID, groupID)
	} else {
		err = svc.AddPrinterToGroup(*req.PrinterID, groupID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add group member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": groupID})
}

// RemoveGroupMemberHandler unlinks a user or printer from a group
func RemoveGroupMemberHandler(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req groupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.UserID == nil && req.PrinterID == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id or printer_id is required"})
		return
	}

	svc := database.NewGroupService(database.GetDB())
	if req.UserID != nil {
		err = svc.RemoveUserFromGroup(*req.UserID, groupID)
	} else {
		err = svc.RemovePrinterFromGroup(*req.PrinterID, groupID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove group member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": groupID})
}

// GroupPrintersHandler lists printers linked to a group
func GroupPrintersHandler(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	printers, err := database.NewGroupService(database.GetDB()).GetGroupPrinters(groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list group printers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers})
}
