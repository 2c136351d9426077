package service

import (
	"context"
	"strings"

	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	apperrors "github.com/Dumbogiflen/Manifest-system/internal/errors"
	"github.com/Dumbogiflen/Manifest-system/internal/store"

	"github.com/sirupsen/logrus"
)

// QuickReplies manages the canned message set offered for fast sending.
type QuickReplies struct {
	store  store.Store
	logger *logrus.Logger
}

func NewQuickReplies(s store.Store, logger *logrus.Logger) *QuickReplies {
	return &QuickReplies{
		store:  s,
		logger: logger,
	}
}

// Seed installs the default replies when the store holds none yet.
func (q *QuickReplies) Seed(ctx context.Context) error {
	existing, err := q.store.ListQuickReplies(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, text := range constants.DefaultQuickReplies {
		if err := q.store.AddQuickReply(ctx, text); err != nil {
			return err
		}
	}
	q.logger.WithField("count", len(constants.DefaultQuickReplies)).Info("Seeded default quick replies")
	return nil
}

func (q *QuickReplies) Add(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.New(apperrors.ErrCodeValidationFailed, "quick reply text must not be empty").
			WithUserMessage("Quick reply text is required")
	}
	return q.store.AddQuickReply(ctx, text)
}

// Remove deletes a reply by value; removing an absent value is a no-op.
func (q *QuickReplies) Remove(ctx context.Context, text string) error {
	return q.store.RemoveQuickReply(ctx, text)
}

func (q *QuickReplies) List(ctx context.Context) ([]string, error) {
	return q.store.ListQuickReplies(ctx)
}
