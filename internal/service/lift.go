package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	apperrors "github.com/Dumbogiflen/Manifest-system/internal/errors"
	"github.com/Dumbogiflen/Manifest-system/internal/metrics"
	"github.com/Dumbogiflen/Manifest-system/internal/models"
	"github.com/Dumbogiflen/Manifest-system/internal/store"

	"github.com/sirupsen/logrus"
)

// Publisher is the outbound transport surface the synchronizer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// WarningNotRelayed is returned from Submit when the lift was written
// locally but the publish to the pilot failed. The write stands; the record
// will reach the pilot on a later resend.
const WarningNotRelayed = "written locally, not yet relayed"

// NormalizeLift converts a raw, operator-entered lift payload into a typed
// Lift. It is a pure function and it is total over the data fields: manifest
// entry is interactive and a keystroke-level draft must never hard-fail, so
// every malformed field degrades to a documented default instead of
// erroring. Only a missing or non-numeric id is rejected, since without an
// identity there is nothing to upsert.
//
// Rules:
//   - rows whose jumper count is absent, unparsable, or non-positive are
//     dropped entirely
//   - altitude defaults to 0, negative altitudes clamp to 0
//   - overflights defaults to 1 and never falls below 1
//   - totals.jumpers defaults to the sum of the retained rows' jumpers; an
//     explicit numeric value overrides the sum and is preserved verbatim
//   - totals.canopies defaults to the (possibly overridden) jumper total
//   - name defaults to "Lift {id}", status to active
//
// Normalizing an already-normalized lift yields an identical result.
func NormalizeLift(raw map[string]interface{}) (models.Lift, error) {
	id, ok := asInt(raw["id"])
	if !ok {
		return models.Lift{}, apperrors.New(apperrors.ErrCodeValidationFailed, "lift id is required and must be numeric").
			WithUserMessage("Lift id is required")
	}

	lift := models.Lift{
		ID:     int64(id),
		Name:   asString(raw["name"]),
		Status: models.LiftStatusActive,
		Rows:   normalizeRows(raw["rows"]),
	}
	if lift.Name == "" {
		lift.Name = models.DefaultLiftName(lift.ID)
	}
	if asString(raw["status"]) == string(models.LiftStatusCompleted) {
		lift.Status = models.LiftStatusCompleted
	}

	computed := 0
	for _, row := range lift.Rows {
		computed += row.Jumpers
	}

	jumpers, canopies := rawTotals(raw)
	lift.Totals.Jumpers = computed
	if jumpers != nil {
		lift.Totals.Jumpers = *jumpers
	}
	lift.Totals.Canopies = lift.Totals.Jumpers
	if canopies != nil {
		lift.Totals.Canopies = *canopies
	}

	return lift, nil
}

func normalizeRows(raw interface{}) []models.LiftRow {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	var rows []models.LiftRow
	for _, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		jumpers, ok := asInt(fields["jumpers"])
		if !ok || jumpers <= 0 {
			continue
		}

		alt, _ := asInt(fields["alt"])
		if alt < 0 {
			alt = 0
		}

		overflights, ok := asInt(fields["overflights"])
		if !ok || overflights < 1 {
			overflights = 1
		}

		rows = append(rows, models.LiftRow{
			Alt:         alt,
			Jumpers:     jumpers,
			Overflights: overflights,
		})
	}
	return rows
}

// rawTotals reads explicit totals from either the nested
// {"totals":{"jumpers":..,"canopies":..}} form or the flat
// totals_jumpers/totals_canopies form. A completely unparsable totals block
// yields nil values, falling the caller back to computed sums.
func rawTotals(raw map[string]interface{}) (jumpers, canopies *int) {
	if block, ok := raw["totals"].(map[string]interface{}); ok {
		if v, ok := asInt(block["jumpers"]); ok {
			jumpers = &v
		}
		if v, ok := asInt(block["canopies"]); ok {
			canopies = &v
		}
		return jumpers, canopies
	}

	if v, ok := asInt(raw["totals_jumpers"]); ok {
		jumpers = &v
	}
	if v, ok := asInt(raw["totals_canopies"]); ok {
		canopies = &v
	}
	return jumpers, canopies
}

func asInt(v interface{}) (int, bool) {
	switch value := v.(type) {
	case float64:
		return int(value), true
	case int:
		return value, true
	case int64:
		return int(value), true
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LiftSynchronizer owns lift identity, rows, and totals. Lifts are keyed by
// the operator-assigned id and replaced wholesale on every submit.
type LiftSynchronizer struct {
	store       store.Store
	publisher   Publisher
	topic       string
	sameDayOnly bool
	logger      *logrus.Logger
}

func NewLiftSynchronizer(s store.Store, publisher Publisher, topic string, sameDayOnly bool, logger *logrus.Logger) *LiftSynchronizer {
	return &LiftSynchronizer{
		store:       s,
		publisher:   publisher,
		topic:       topic,
		sameDayOnly: sameDayOnly,
		logger:      logger,
	}
}

// Submit normalizes and stores a raw lift payload, then relays the
// normalized record to the pilot. The relay happens strictly after the local
// write so a persistence failure never leaks a stale publish; a publish
// failure degrades to a warning, never to data loss.
func (s *LiftSynchronizer) Submit(ctx context.Context, raw map[string]interface{}) (models.Lift, string, error) {
	lift, err := NormalizeLift(raw)
	if err != nil {
		return models.Lift{}, "", err
	}
	lift.CreatedAt = time.Now().UTC()

	if err := s.store.UpsertLift(ctx, &lift); err != nil {
		return models.Lift{}, "", err
	}
	metrics.IncrementCounter("lifts_upserted", nil, "Lift records stored")

	payload, err := json.Marshal(lift)
	if err != nil {
		return lift, "", apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encode lift")
	}

	if err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		s.logger.WithFields(logrus.Fields{
			"lift_id": lift.ID,
			"error":   err,
		}).Warn("Lift stored locally but not relayed to pilot")
		metrics.IncrementCounter("lifts_publish_failed", nil, "Lift publishes that failed after a successful local write")
		return lift, WarningNotRelayed, nil
	}

	return lift, "", nil
}

// ApplyRemoteStatus applies a pilot-side status change in place. Unknown
// lift ids are absorbed, same as unknown message acks.
func (s *LiftSynchronizer) ApplyRemoteStatus(ctx context.Context, id int64, status models.LiftStatus) error {
	found, err := s.store.UpdateLiftStatus(ctx, id, status)
	if err != nil {
		return err
	}

	if !found {
		s.logger.WithFields(logrus.Fields{
			"lift_id": id,
			"status":  status,
		}).Debug("Lift status update references unknown lift id, ignoring")
		metrics.IncrementCounter("lift_status_events", map[string]string{"result": "unknown_id"}, "Lift status events by outcome")
		return nil
	}

	metrics.IncrementCounter("lift_status_events", map[string]string{"result": "applied"}, "Lift status events by outcome")
	return nil
}

// List returns lifts most-recent-id-first. With the same-day filter enabled
// the view is limited to lifts created on the current UTC day, matching the
// operator display of today's flying.
func (s *LiftSynchronizer) List(ctx context.Context) ([]models.Lift, error) {
	lifts, err := s.store.ListLifts(ctx)
	if err != nil {
		return nil, err
	}
	if !s.sameDayOnly {
		return lifts, nil
	}

	year, month, day := time.Now().UTC().Date()
	filtered := lifts[:0]
	for _, lift := range lifts {
		y, m, d := lift.CreatedAt.UTC().Date()
		if y == year && m == month && d == day {
			filtered = append(filtered, lift)
		}
	}
	return filtered, nil
}
