// Package handlers implements the HTTP control plane around the websocket
// core: firmware management, rollout CRUD, printer administration and
// message history.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paperminder/paperminder/internal/config"
)

// HealthHandler reports liveness
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ConfigHandler exposes the client-relevant configuration
func ConfigHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"base_url":          config.Get("BASE_URL", "http://localhost:8000"),
		"max_firmware_size": config.GetInt64("MAX_FIRMWARE_SIZE", 5*1024*1024),
	})
}
