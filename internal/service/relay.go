package service

import (
	"context"
	"encoding/json"

	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	apperrors "github.com/Dumbogiflen/Manifest-system/internal/errors"
	"github.com/Dumbogiflen/Manifest-system/internal/metrics"
	"github.com/Dumbogiflen/Manifest-system/internal/models"
	"github.com/Dumbogiflen/Manifest-system/pkg/transport"

	"github.com/sirupsen/logrus"
)

// PilotEvents is the inbound event contract: one method per event kind the
// pilot can emit. The Relay implements it and registers itself with the
// transport at construction time, so the dependency is explicit and each
// event path can be exercised in isolation.
type PilotEvents interface {
	OnPilotMessage(ctx context.Context, text string)
	OnPilotAck(ctx context.Context, ack models.MessageAck)
	OnLiftStatus(ctx context.Context, event models.LiftStatusEvent)
}

// Bus is the transport surface the relay depends on.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler transport.Handler)
}

// Topics holds the fully-qualified topic names for one broker prefix.
type Topics struct {
	OutMessages string
	OutAcks     string
	OutLift     string
	InMessages  string
	InAcks      string
	InStatus    string
}

// NewTopics qualifies the protocol's topic suffixes with the configured
// broker prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = constants.DefaultTopicPrefix
	}
	return Topics{
		OutMessages: prefix + "/" + constants.TopicManifestMessages,
		OutAcks:     prefix + "/" + constants.TopicManifestAcks,
		OutLift:     prefix + "/" + constants.TopicLift,
		InMessages:  prefix + "/" + constants.TopicPilotMessages,
		InAcks:      prefix + "/" + constants.TopicPilotAcks,
		InStatus:    prefix + "/" + constants.TopicLiftStatus,
	}
}

// Relay wires the ledger and the lift synchronizer to the transport: it
// decodes inbound frames into typed events and publishes outbound messages
// and acks. Malformed inbound payloads are absorbed with a log entry; the
// transport is unordered and untrusted and must never crash the station.
type Relay struct {
	ledger *MessageLedger
	lifts  *LiftSynchronizer
	bus    Bus
	topics Topics
	logger *logrus.Logger
}

var _ PilotEvents = (*Relay)(nil)

func NewRelay(ledger *MessageLedger, lifts *LiftSynchronizer, bus Bus, topics Topics, logger *logrus.Logger) *Relay {
	r := &Relay{
		ledger: ledger,
		lifts:  lifts,
		bus:    bus,
		topics: topics,
		logger: logger,
	}

	bus.Subscribe(topics.InMessages, func(ctx context.Context, payload []byte) {
		r.OnPilotMessage(ctx, string(payload))
	})
	bus.Subscribe(topics.InAcks, func(ctx context.Context, payload []byte) {
		var ack models.MessageAck
		if err := json.Unmarshal(payload, &ack); err != nil {
			r.logger.WithError(err).Warn("Dropping malformed pilot ack")
			return
		}
		r.OnPilotAck(ctx, ack)
	})
	bus.Subscribe(topics.InStatus, func(ctx context.Context, payload []byte) {
		var event models.LiftStatusEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			r.logger.WithError(err).Warn("Dropping malformed lift status event")
			return
		}
		r.OnLiftStatus(ctx, event)
	})

	return r
}

// OnPilotMessage records an inbound text. The pilot protocol carries plain
// UTF-8 with no ids, so the message enters the ledger as delivered.
func (r *Relay) OnPilotMessage(ctx context.Context, text string) {
	msg, err := r.ledger.Record(ctx, models.DirectionInbound, text, models.MessageStatusDelivered, nil)
	if err != nil {
		r.logger.WithError(err).Warn("Dropping inbound pilot message")
		return
	}
	r.logger.WithField("message_id", msg.ID).Info("Pilot message received")
}

// OnPilotAck resolves an acknowledgment against the ledger. Unknown ids are
// expected under unordered delivery and absorbed by the ledger.
func (r *Relay) OnPilotAck(ctx context.Context, ack models.MessageAck) {
	status := ack.Status
	if status == "" {
		status = models.MessageStatusDelivered
	}

	if err := r.ledger.UpdateStatus(ctx, ack.ForID, status); err != nil {
		r.logger.WithFields(logrus.Fields{
			"for_id": ack.ForID,
			"error":  err,
		}).Error("Failed to apply pilot ack")
	}
}

// OnLiftStatus applies a pilot-side lift status change.
func (r *Relay) OnLiftStatus(ctx context.Context, event models.LiftStatusEvent) {
	if err := r.lifts.ApplyRemoteStatus(ctx, event.ID, event.Status); err != nil {
		r.logger.WithFields(logrus.Fields{
			"lift_id": event.ID,
			"error":   err,
		}).Error("Failed to apply lift status event")
	}
}

// SendMessage records an outbound message and relays the text to the pilot.
// The local write always completes before the publish attempt; a transport
// outage degrades to "written locally, not yet relayed".
func (r *Relay) SendMessage(ctx context.Context, text string) (*models.Message, string, error) {
	msg, err := r.ledger.Record(ctx, models.DirectionOutbound, text, models.MessageStatusSent, nil)
	if err != nil {
		return nil, "", err
	}

	if err := r.bus.Publish(ctx, r.topics.OutMessages, []byte(msg.Text)); err != nil {
		r.logger.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"error":      err,
		}).Warn("Message stored locally but not relayed to pilot")
		metrics.IncrementCounter("messages_publish_failed", nil, "Message publishes that failed after a successful local write")
		return msg, WarningNotRelayed, nil
	}

	return msg, "", nil
}

// SendAck relays a manifest-side acknowledgment (delivered/read) for one of
// the pilot's messages. There is no local write involved; a publish failure
// surfaces as a warning so the operator can retry.
func (r *Relay) SendAck(ctx context.Context, ack models.MessageAck) (string, error) {
	if ack.ForID <= 0 {
		return "", apperrors.New(apperrors.ErrCodeValidationFailed, "ack for_id is required and must be positive").
			WithUserMessage("Ack target id is required")
	}
	if ack.Status != models.MessageStatusDelivered && ack.Status != models.MessageStatusRead {
		return "", apperrors.New(apperrors.ErrCodeValidationFailed, "ack status must be delivered or read").
			WithUserMessage("Ack status must be delivered or read")
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encode ack")
	}

	if err := r.bus.Publish(ctx, r.topics.OutAcks, payload); err != nil {
		r.logger.WithFields(logrus.Fields{
			"for_id": ack.ForID,
			"error":  err,
		}).Warn("Ack not relayed to pilot")
		return WarningNotRelayed, nil
	}

	return "", nil
}
