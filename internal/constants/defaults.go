package constants

// Default server configuration values
const (
	DefaultServerPort            = 8082
	DefaultStaticDir             = "static"
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default retry/backoff configuration values
const (
	DefaultInitialBackoffMs   = 1000
	DefaultMaxBackoffMs       = 60000
	DefaultMaxAttempts        = 5
	DefaultStoreRetryAttempts = 3
)

// Default storage configuration values
const (
	StorageBackendSQLite = "sqlite"
	StorageBackendMemory = "memory"

	DefaultStorageBackend  = StorageBackendSQLite
	DefaultDatabasePath    = "manifest.db"
	DefaultStoreTimeoutSec = 5
)

// Default ledger and projection values
const (
	DefaultMessageLimit = 200
)

// Default broker configuration values
const (
	DefaultTopicPrefix = "dropzone"

	// Topic suffixes, joined to the prefix as "{prefix}/{suffix}".
	TopicManifestMessages = "manifest/messages" // manifest -> pilot, plain text
	TopicManifestAcks     = "manifest/acks"     // manifest -> pilot, MessageAck JSON
	TopicLift             = "lift"              // manifest -> pilot, normalized Lift JSON
	TopicPilotMessages    = "pilot/messages"    // pilot -> manifest, plain text
	TopicPilotAcks        = "pilot/acks"        // pilot -> manifest, MessageAck JSON
	TopicLiftStatus       = "lift/status"       // pilot -> manifest, LiftStatusEvent JSON
)

// DefaultQuickReplies seeds the quick-reply set on first run.
var DefaultQuickReplies = []string{
	"Delayed 5 minutes",
	"Ready for lift",
	"Need fuel",
}
