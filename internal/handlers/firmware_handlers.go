package handlers

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/config"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/platform"
	"github.com/paperminder/paperminder/internal/services"
)

// UploadFirmwareHandler accepts a multipart firmware upload. Digests are
// computed server-side; (version, platform) must be unique.
func UploadFirmwareHandler(c *gin.Context) {
	version := c.PostForm("version")
	plat := platform.Normalize(c.PostForm("platform"))
	if version == "" || plat == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version and platform are required"})
		return
	}

	channel := c.DefaultPostForm("channel", database.ChannelStable)
	switch channel {
	case database.ChannelStable, database.ChannelBeta, database.ChannelCanary:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Firmware file is required"})
		return
	}

	maxSize := config.GetInt64("MAX_FIRMWARE_SIZE", 5*1024*1024)
	if file.Size > maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Firmware exceeds %d byte limit", maxSize),
		})
		return
	}

	reader, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read firmware file"})
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read firmware file"})
		return
	}
	if int64(len(data)) > maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Firmware exceeds %d byte limit", maxSize),
		})
		return
	}

	md5Sum := md5.Sum(data)
	sha256Sum := sha256.Sum256(data)

	fw := &database.FirmwareVersion{
		Version:      version,
		Platform:     plat,
		Channel:      channel,
		Data:         data,
		FileSize:     int64(len(data)),
		MD5:          hex.EncodeToString(md5Sum[:]),
		SHA256:       hex.EncodeToString(sha256Sum[:]),
		ReleaseNotes: c.PostForm("release_notes"),
		Changelog:    c.PostForm("changelog"),
		Mandatory:    c.PostForm("mandatory") == "true",
	}
	if min := c.PostForm("min_upgrade_version"); min != "" {
		fw.MinUpgradeVersion = &min
	}

	svc := database.NewFirmwareService(database.GetDB())
	if err := svc.Create(fw); err != nil {
		if errors.Is(err, database.ErrDuplicateVersion) {
			c.JSON(http.StatusConflict, gin.H{"error": "Firmware version already exists for this platform"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store firmware"})
		return
	}

	logging.InfoWithComponent(logging.ComponentFirmware, "Firmware uploaded",
		"version", fw.Version, "platform", fw.Platform, "size", fw.FileSize)
	c.JSON(http.StatusCreated, fw)
}

// DownloadFirmwareHandler serves a firmware blob under the stable URL
// /api/firmware/download/:version?platform=…
func DownloadFirmwareHandler(c *gin.Context) {
	version := c.Param("version")
	plat := c.Query("platform")

	svc := database.NewFirmwareService(database.GetDB())
	fw, err := svc.GetByVersionAndPlatform(version, plat)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Firmware version not found"})
		return
	}

	if err := svc.RecordDownload(fw.ID); err != nil {
		logging.WarnWithComponent(logging.ComponentFirmware, "Failed to bump download counter",
			"version", version, "error", err)
	}

	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"firmware_%s_%s.bin\"", fw.Version, fw.Platform))
	c.Header("Content-Length", strconv.FormatInt(fw.FileSize, 10))
	c.Header("X-MD5", fw.MD5)
	c.Data(http.StatusOK, "application/octet-stream", fw.Data)
}

// ListFirmwareHandler returns firmware versions, optionally filtered by
// ?channel=
func ListFirmwareHandler(c *gin.Context) {
	svc := database.NewFirmwareService(database.GetDB())
	versions, err := svc.List(c.Query("channel"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list firmware versions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"firmware_versions": versions})
}

// DeleteFirmwareHandler removes a firmware version
func DeleteFirmwareHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid firmware ID"})
		return
	}

	svc := database.NewFirmwareService(database.GetDB())
	if err := svc.Delete(id); err != nil {
		if errors.Is(err, database.ErrFirmwareNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Firmware version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete firmware"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// DeprecateFirmwareHandler stamps deprecated_at on all builds of a version
func DeprecateFirmwareHandler(c *gin.Context) {
	version := c.Param("version")

	svc := database.NewFirmwareService(database.GetDB())
	if err := svc.Deprecate(version); err != nil {
		if errors.Is(err, database.ErrFirmwareNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Firmware version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deprecate firmware"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deprecated": version})
}

// ImportS3FirmwareHandler pulls missing firmware binaries from the
// configured S3 bucket into the store.
func ImportS3FirmwareHandler(c *gin.Context) {
	importer, err := services.NewS3FirmwareImporter(c.Request.Context(), database.GetDB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	imported, err := importer.Import(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("S3 import failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}
