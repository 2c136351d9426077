package store

import (
	"context"
	"fmt"

	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	"github.com/Dumbogiflen/Manifest-system/internal/models"
)

// Store is the persistence contract shared by both backends. Semantics both
// implementations must honor:
//
//   - SaveMessage assigns the next message id, strictly increasing and never
//     reused within the store's lifetime, and stamps the creation time.
//   - UpsertLift replaces any prior lift with the same id wholesale, rows
//     and totals included. No field-by-field merging.
//   - UpdateMessageStatus/UpdateLiftStatus report whether the id existed;
//     they never fail on an unknown id.
//   - Quick replies behave as an ordered set: duplicates ignored on add,
//     removal by value, insertion order preserved.
//
// The shared contract test suite in contract_test.go runs against both
// implementations.
type Store interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, limit int) ([]models.Message, error)
	UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus) (bool, error)

	UpsertLift(ctx context.Context, lift *models.Lift) error
	ListLifts(ctx context.Context) ([]models.Lift, error)
	UpdateLiftStatus(ctx context.Context, id int64, status models.LiftStatus) (bool, error)

	AddQuickReply(ctx context.Context, text string) error
	RemoveQuickReply(ctx context.Context, text string) error
	ListQuickReplies(ctx context.Context) ([]string, error)

	Close() error
}

// Open selects the backend from configuration at process start. The memory
// backend runs with zero external dependencies for field/offline use; the
// sqlite backend is the durable choice for networked deployments.
func Open(cfg models.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case constants.StorageBackendSQLite, "":
		path := cfg.Path
		if path == "" {
			path = constants.DefaultDatabasePath
		}
		return NewSQLiteStore(path)
	case constants.StorageBackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
