package models

const (
	SyncPending   = "pending"
	SyncRetry     = "retry"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

const (
	SyncTaskUpsert = "upsert"
	SyncTaskStatus = "update_status"
	SyncTaskDelete = "delete"
)

const (
	// WorkerQueueSize is the in-memory fallback queue size.
	WorkerQueueSize = 1000

	// DefaultListLimit caps list endpoints when no limit is given.
	DefaultListLimit = 50

	// SheetsCacheTTL is how long spreadsheet row positions stay cached, in seconds.
	SheetsCacheTTL = 60 * 60
)
