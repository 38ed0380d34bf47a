package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/auth"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/hub"
	"github.com/paperminder/paperminder/internal/imageprocessing"
	"github.com/paperminder/paperminder/internal/platform"
)

type registerPrinterRequest struct {
	Name     string `json:"name" binding:"required"`
	Platform string `json:"platform"`
	Channel  string `json:"update_channel"`
}

// RegisterPrinterHandler creates a printer owned by the caller
func RegisterPrinterHandler(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req registerPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid printer request"})
		return
	}

	printer := &database.Printer{
		UserID:        &user.ID,
		Name:          req.Name,
		Platform:      platform.Normalize(req.Platform),
		UpdateChannel: req.Channel,
	}
	if err := database.NewPrinterService(database.GetDB()).Register(printer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register printer"})
		return
	}
	c.JSON(http.StatusCreated, printer)
}

// ListPrintersHandler returns the caller's printers; admins see the fleet
// with ?all=true.
func ListPrintersHandler(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	svc := database.NewPrinterService(database.GetDB())

	var printers []database.Printer
	var err error
	if user.IsAdmin && c.Query("all") == "true" {
		printers, err = svc.List()
	} else {
		printers, err = svc.ListByUser(user.ID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list printers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers, "total": len(printers)})
}

// ListOnlinePrintersHandler lists currently connected printers straight from
// the registry.
func ListOnlinePrintersHandler(c *gin.Context) {
	h := hub.GetHub()
	svc := database.NewPrinterService(database.GetDB())

	ids := h.ConnectedPrinterIDs()
	printers := make([]database.Printer, 0, len(ids))
	for _, id := range ids {
		if printer, err := svc.GetByID(id); err == nil {
			printers = append(printers, *printer)
		}
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers, "total": len(printers)})
}

// GetPrinterHandler returns one printer with live connection state
func GetPrinterHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid printer ID"})
		return
	}

	printer, err := database.NewPrinterService(database.GetDB()).GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Printer not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"printer":   printer,
		"connected": hub.GetHub().IsConnected(id),
	})
}

type updatePrinterRequest struct {
	Name          *string `json:"name"`
	AutoUpdate    *bool   `json:"auto_update"`
	UpdateChannel *string `json:"update_channel"`
}

// UpdatePrinterHandler applies user-editable printer fields
func UpdatePrinterHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid printer ID"})
		return
	}

	var req updatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update request"})
		return
	}

	printer, err := database.NewPrinterService(database.GetDB()).Update(id, req.Name, req.AutoUpdate, req.UpdateChannel)
	if err != nil {
		if errors.Is(err, database.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update printer"})
		return
	}
	c.JSON(http.StatusOK, printer)
}

// DeletePrinterHandler removes a printer
func DeletePrinterHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid printer ID"})
		return
	}

	if err := database.NewPrinterService(database.GetDB()).Delete(id); err != nil {
		if errors.Is(err, database.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete printer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// PrinterUpdateHistoryHandler lists a printer's firmware update attempts
func PrinterUpdateHistoryHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid printer ID"})
		return
	}

	history, err := database.NewUpdateService(database.GetDB()).HistoryForPrinter(id, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load update history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updates": history})
}

// PrintImageHandler converts an uploaded image through the bitmap pipeline
// and dispatches it to the printer. Bitmaps require a live session; nothing
// is cached.
func PrintImageHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid printer ID"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required"})
		return
	}

	reader, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read image"})
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read image"})
		return
	}

	img, err := imageprocessing.DecodeImage(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frame, err := imageprocessing.PrepareBitmapFrame(img, 0, c.PostForm("caption"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = hub.GetHub().DispatchBitmap(id, frame)
	switch {
	case errors.Is(err, database.ErrPrinterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Printer not found"})
	case errors.Is(err, hub.ErrRecipientNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": "Printer is not connected"})
	case errors.Is(err, hub.ErrInvalidBitmap):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to deliver bitmap"})
	default:
		c.JSON(http.StatusAccepted, gin.H{
			"width":  frame.Width,
			"height": frame.Height,
		})
	}
}
