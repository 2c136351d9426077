package service

import (
	"context"

	"github.com/Dumbogiflen/Manifest-system/internal/models"
)

// StateProjector assembles the consolidated view consumed by the operator
// UI. Each snapshot is built fresh from the owning components so readers
// never see a view cached across writes.
type StateProjector struct {
	ledger *MessageLedger
	lifts  *LiftSynchronizer
	quick  *QuickReplies
}

func NewStateProjector(ledger *MessageLedger, lifts *LiftSynchronizer, quick *QuickReplies) *StateProjector {
	return &StateProjector{
		ledger: ledger,
		lifts:  lifts,
		quick:  quick,
	}
}

func (p *StateProjector) Snapshot(ctx context.Context) (models.StateSnapshot, error) {
	messages, err := p.ledger.List(ctx, 0)
	if err != nil {
		return models.StateSnapshot{}, err
	}

	lifts, err := p.lifts.List(ctx)
	if err != nil {
		return models.StateSnapshot{}, err
	}

	quick, err := p.quick.List(ctx)
	if err != nil {
		return models.StateSnapshot{}, err
	}

	// Empty collections serialize as [] rather than null
	if messages == nil {
		messages = []models.Message{}
	}
	if lifts == nil {
		lifts = []models.Lift{}
	}
	if quick == nil {
		quick = []string{}
	}

	return models.StateSnapshot{
		Messages:     messages,
		Lifts:        lifts,
		QuickReplies: quick,
	}, nil
}
