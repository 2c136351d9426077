package service

import (
	"context"
	"strings"

	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	apperrors "github.com/Dumbogiflen/Manifest-system/internal/errors"
	"github.com/Dumbogiflen/Manifest-system/internal/metrics"
	"github.com/Dumbogiflen/Manifest-system/internal/models"
	"github.com/Dumbogiflen/Manifest-system/internal/store"

	"github.com/sirupsen/logrus"
)

// MessageLedger owns message identity and status. Entries are append-only:
// text and timestamp never change after Record, and only status-update
// events mutate an entry afterwards.
//
// Status transitions are not checked for monotonicity: a replayed ack may
// move a message backward (read to delivered). That matches the remote
// protocol's behavior and is deliberate.
type MessageLedger struct {
	store  store.Store
	limit  int
	logger *logrus.Logger
}

func NewMessageLedger(s store.Store, limit int, logger *logrus.Logger) *MessageLedger {
	if limit <= 0 {
		limit = constants.DefaultMessageLimit
	}
	return &MessageLedger{
		store:  s,
		limit:  limit,
		logger: logger,
	}
}

// Record appends a message and returns it with its assigned id and
// timestamp. Empty or whitespace-only text is rejected.
func (l *MessageLedger) Record(ctx context.Context, direction models.MessageDirection, text string, status models.MessageStatus, remoteID *string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidationFailed, "message text must not be empty").
			WithUserMessage("Message text is required")
	}

	msg := &models.Message{
		Direction: direction,
		Text:      text,
		Status:    status,
		RemoteID:  remoteID,
	}
	if err := l.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	metrics.IncrementCounter("ledger_messages", map[string]string{"direction": string(direction)}, "Messages recorded per direction")
	return msg, nil
}

// UpdateStatus applies a status-update event. An unknown id is not an
// error: acks can outrun or outlive the message they reference when the
// transport delivers out of order, so the event is absorbed and counted.
func (l *MessageLedger) UpdateStatus(ctx context.Context, id int64, status models.MessageStatus) error {
	found, err := l.store.UpdateMessageStatus(ctx, id, status)
	if err != nil {
		return err
	}

	if !found {
		l.logger.WithFields(logrus.Fields{
			"message_id": id,
			"status":     status,
		}).Debug("Status update references unknown message id, ignoring")
		metrics.IncrementCounter("ledger_acks", map[string]string{"result": "unknown_id"}, "Acks by outcome")
		return nil
	}

	metrics.IncrementCounter("ledger_acks", map[string]string{"result": "applied"}, "Acks by outcome")
	return nil
}

// List returns messages most-recent first. A non-positive limit falls back
// to the ledger's configured bound.
func (l *MessageLedger) List(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = l.limit
	}
	return l.store.ListMessages(ctx, limit)
}
