package logging

// Component constants for structured logging
const (
	ComponentStartup   = "startup"
	ComponentShutdown  = "shutdown"
	ComponentDatabase  = "database"
	ComponentAuth      = "auth"
	ComponentHub       = "hub"
	ComponentRouter    = "message-router"
	ComponentBitmap    = "bitmap"
	ComponentRollout   = "rollout"
	ComponentTracker   = "update-tracker"
	ComponentScheduler = "scheduler"
	ComponentFirmware  = "firmware"
	ComponentS3Import  = "s3-import"
)
