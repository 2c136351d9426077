package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Dumbogiflen/Manifest-system/internal/errors"
	"github.com/Dumbogiflen/Manifest-system/internal/models"
	"github.com/Dumbogiflen/Manifest-system/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type capturingPublisher struct {
	topics   []string
	payloads [][]byte
	fail     bool
}

func (p *capturingPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.fail {
		return errors.New("transport down")
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func rawFromJSON(t *testing.T, data string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(data), &raw))
	return raw
}

func TestNormalizeLift_FiltersZeroJumperRows(t *testing.T) {
	// Scenario: a drafted row with no jumpers yet must not reach the pilot
	raw := rawFromJSON(t, `{
		"id": 7,
		"rows": [
			{"alt": 1000, "jumpers": 2},
			{"alt": 1500, "jumpers": 0}
		]
	}`)

	lift, err := NormalizeLift(raw)
	require.NoError(t, err)

	assert.Equal(t, int64(7), lift.ID)
	assert.Equal(t, "Lift 7", lift.Name)
	assert.Equal(t, models.LiftStatusActive, lift.Status)
	require.Len(t, lift.Rows, 1)
	assert.Equal(t, models.LiftRow{Alt: 1000, Jumpers: 2, Overflights: 1}, lift.Rows[0])
	assert.Equal(t, models.LiftTotals{Jumpers: 2, Canopies: 2}, lift.Totals)
}

func TestNormalizeLift_ExplicitTotalsOverrideComputedSum(t *testing.T) {
	raw := rawFromJSON(t, `{
		"id": 7,
		"rows": [{"alt": 1000, "jumpers": 2}],
		"totals": {"jumpers": 99}
	}`)

	lift, err := NormalizeLift(raw)
	require.NoError(t, err)

	assert.Equal(t, models.LiftTotals{Jumpers: 99, Canopies: 99}, lift.Totals)
}

func TestNormalizeLift_ExplicitCanopies(t *testing.T) {
	raw := rawFromJSON(t, `{
		"id": 3,
		"rows": [
			{"alt": 4000, "jumpers": 10, "overflights": 1},
			{"alt": 2250, "jumpers": 2, "overflights": 1}
		],
		"totals": {"jumpers": 15, "canopies": 11}
	}`)

	lift, err := NormalizeLift(raw)
	require.NoError(t, err)
	assert.Equal(t, models.LiftTotals{Jumpers: 15, Canopies: 11}, lift.Totals)
}

func TestNormalizeLift_FlatTotalsForm(t *testing.T) {
	raw := rawFromJSON(t, `{
		"id": 4,
		"rows": [{"alt": 1000, "jumpers": 2}],
		"totals_jumpers": 8,
		"totals_canopies": 6
	}`)

	lift, err := NormalizeLift(raw)
	require.NoError(t, err)
	assert.Equal(t, models.LiftTotals{Jumpers: 8, Canopies: 6}, lift.Totals)
}

func TestNormalizeLift_MalformedFieldsDegradeToDefaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.Lift
	}{
		{
			name: "unparsable jumper count drops the row",
			raw:  `{"id": 1, "rows": [{"alt": 1000, "jumpers": "abc"}, {"alt": 1500, "jumpers": 3}]}`,
			want: models.Lift{
				ID: 1, Name: "Lift 1", Status: models.LiftStatusActive,
				Rows:   []models.LiftRow{{Alt: 1500, Jumpers: 3, Overflights: 1}},
				Totals: models.LiftTotals{Jumpers: 3, Canopies: 3},
			},
		},
		{
			name: "negative jumper count drops the row",
			raw:  `{"id": 1, "rows": [{"alt": 1000, "jumpers": -2}]}`,
			want: models.Lift{
				ID: 1, Name: "Lift 1", Status: models.LiftStatusActive,
				Totals: models.LiftTotals{Jumpers: 0, Canopies: 0},
			},
		},
		{
			name: "missing altitude defaults to zero",
			raw:  `{"id": 1, "rows": [{"jumpers": 2}]}`,
			want: models.Lift{
				ID: 1, Name: "Lift 1", Status: models.LiftStatusActive,
				Rows:   []models.LiftRow{{Alt: 0, Jumpers: 2, Overflights: 1}},
				Totals: models.LiftTotals{Jumpers: 2, Canopies: 2},
			},
		},
		{
			name: "negative altitude clamps to zero",
			raw:  `{"id": 1, "rows": [{"alt": -500, "jumpers": 2}]}`,
			want: models.Lift{
				ID: 1, Name: "Lift 1", Status: models.LiftStatusActive,
				Rows:   []models.LiftRow{{Alt: 0, Jumpers: 2, Overflights: 1}},
				Totals: models.LiftTotals{Jumpers: 2, Canopies: 2},
			},
		},
		{
			name: "zero overflights bumps to one",
			raw:  `{"id": 1, "rows": [{"alt": 1000, "jumpers": 2, "overflights": 0}]}`,
			want: models.Lift{
				ID: 1, Name: "Lift 1", Status: models.LiftStatusActive,
				Rows:   []models.LiftRow{{Alt: 1000, Jumpers: 2, Overflights: 1}},
				Totals: models.LiftTotals{Jumpers: 2, Canopies: 2},
			},
		},
		{
			name: "rows not a list yields empty lift",
			raw:  `{"id": 1, "rows": "garbage"}`,
			want: models.Lift{
				ID: 1, Name: "Lift 1", Status: models.LiftStatusActive,
				Totals: models.LiftTotals{Jumpers: 0, Canopies: 0},
			},
		},
		{
			name: "unparsable totals block falls back to computed sums",
			raw:  `{"id": 1, "rows": [{"alt": 1000, "jumpers": 4}], "totals": {"jumpers": "x", "canopies": false}}`,
			want: models.Lift{
				ID: 1, Name: "Lift 1", Status: models.LiftStatusActive,
				Rows:   []models.LiftRow{{Alt: 1000, Jumpers: 4, Overflights: 1}},
				Totals: models.LiftTotals{Jumpers: 4, Canopies: 4},
			},
		},
		{
			name: "string id and numeric strings accepted",
			raw:  `{"id": "9", "rows": [{"alt": "1200", "jumpers": "2", "overflights": "3"}]}`,
			want: models.Lift{
				ID: 9, Name: "Lift 9", Status: models.LiftStatusActive,
				Rows:   []models.LiftRow{{Alt: 1200, Jumpers: 2, Overflights: 3}},
				Totals: models.LiftTotals{Jumpers: 2, Canopies: 2},
			},
		},
		{
			name: "completed status preserved",
			raw:  `{"id": 2, "status": "completed", "rows": []}`,
			want: models.Lift{
				ID: 2, Name: "Lift 2", Status: models.LiftStatusCompleted,
				Totals: models.LiftTotals{Jumpers: 0, Canopies: 0},
			},
		},
		{
			name: "unknown status falls back to active",
			raw:  `{"id": 2, "status": "scrubbed", "rows": []}`,
			want: models.Lift{
				ID: 2, Name: "Lift 2", Status: models.LiftStatusActive,
				Totals: models.LiftTotals{Jumpers: 0, Canopies: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lift, err := NormalizeLift(rawFromJSON(t, tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, lift)
		})
	}
}

func TestNormalizeLift_MissingIDIsValidationError(t *testing.T) {
	for _, raw := range []string{
		`{"rows": [{"alt": 1000, "jumpers": 2}]}`,
		`{"id": "seven", "rows": []}`,
		`{"id": null, "rows": []}`,
	} {
		_, err := NormalizeLift(rawFromJSON(t, raw))
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
	}
}

func TestNormalizeLift_Idempotent(t *testing.T) {
	raw := rawFromJSON(t, `{
		"id": 7,
		"rows": [
			{"alt": 1000, "jumpers": 2},
			{"alt": 1500, "jumpers": 0},
			{"alt": 4000, "jumpers": 10, "overflights": 2}
		],
		"totals": {"jumpers": 15}
	}`)

	first, err := NormalizeLift(raw)
	require.NoError(t, err)

	// Feed the normalized output back through its own wire encoding
	encoded, err := json.Marshal(first)
	require.NoError(t, err)
	second, err := NormalizeLift(rawFromJSON(t, string(encoded)))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLiftSynchronizer_SubmitStoresThenPublishes(t *testing.T) {
	s := store.NewMemoryStore()
	pub := &capturingPublisher{}
	sync := NewLiftSynchronizer(s, pub, "dz/lift", false, testLogger())

	lift, warning, err := sync.Submit(context.Background(), rawFromJSON(t, `{
		"id": 7,
		"rows": [{"alt": 1000, "jumpers": 2}]
	}`))
	require.NoError(t, err)
	assert.Empty(t, warning)

	stored, err := sync.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, lift.Totals, stored[0].Totals)

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "dz/lift", pub.topics[0])

	var published models.Lift
	require.NoError(t, json.Unmarshal(pub.payloads[0], &published))
	assert.Equal(t, lift.ID, published.ID)
	assert.Equal(t, lift.Rows, published.Rows)
}

func TestLiftSynchronizer_PublishFailureDegradesToWarning(t *testing.T) {
	s := store.NewMemoryStore()
	pub := &capturingPublisher{fail: true}
	sync := NewLiftSynchronizer(s, pub, "dz/lift", false, testLogger())

	lift, warning, err := sync.Submit(context.Background(), rawFromJSON(t, `{
		"id": 7,
		"rows": [{"alt": 1000, "jumpers": 2}]
	}`))
	require.NoError(t, err, "local write succeeded, publish failure must not fail the call")
	assert.Equal(t, WarningNotRelayed, warning)
	assert.Equal(t, int64(7), lift.ID)

	// The local write stands
	stored, err := sync.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestLiftSynchronizer_ResubmitReplacesWholesale(t *testing.T) {
	s := store.NewMemoryStore()
	sync := NewLiftSynchronizer(s, &capturingPublisher{}, "dz/lift", false, testLogger())
	ctx := context.Background()

	_, _, err := sync.Submit(ctx, rawFromJSON(t, `{
		"id": 7,
		"rows": [{"alt": 1000, "jumpers": 2}, {"alt": 4000, "jumpers": 10}]
	}`))
	require.NoError(t, err)

	_, _, err = sync.Submit(ctx, rawFromJSON(t, `{
		"id": 7,
		"rows": [{"alt": 1500, "jumpers": 1}],
		"totals": {"jumpers": 99}
	}`))
	require.NoError(t, err)

	lifts, err := sync.List(ctx)
	require.NoError(t, err)
	require.Len(t, lifts, 1)
	require.Len(t, lifts[0].Rows, 1)
	assert.Equal(t, models.LiftRow{Alt: 1500, Jumpers: 1, Overflights: 1}, lifts[0].Rows[0])
	assert.Equal(t, models.LiftTotals{Jumpers: 99, Canopies: 99}, lifts[0].Totals)
}

func TestLiftSynchronizer_ApplyRemoteStatus(t *testing.T) {
	s := store.NewMemoryStore()
	sync := NewLiftSynchronizer(s, &capturingPublisher{}, "dz/lift", false, testLogger())
	ctx := context.Background()

	_, _, err := sync.Submit(ctx, rawFromJSON(t, `{"id": 7, "rows": [{"alt": 1000, "jumpers": 2}]}`))
	require.NoError(t, err)

	require.NoError(t, sync.ApplyRemoteStatus(ctx, 7, models.LiftStatusCompleted))
	// Unknown id is absorbed
	require.NoError(t, sync.ApplyRemoteStatus(ctx, 404, models.LiftStatusCompleted))

	lifts, err := sync.List(ctx)
	require.NoError(t, err)
	require.Len(t, lifts, 1)
	assert.Equal(t, models.LiftStatusCompleted, lifts[0].Status)
}

func TestLiftSynchronizer_SameDayFilter(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	yesterday := &models.Lift{
		ID:        1,
		Name:      "Lift 1",
		Status:    models.LiftStatusCompleted,
		Totals:    models.LiftTotals{Jumpers: 2, Canopies: 2},
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, s.UpsertLift(ctx, yesterday))

	today := &models.Lift{
		ID:        2,
		Name:      "Lift 2",
		Status:    models.LiftStatusActive,
		Totals:    models.LiftTotals{Jumpers: 4, Canopies: 4},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.UpsertLift(ctx, today))

	sync := NewLiftSynchronizer(s, &capturingPublisher{}, "dz/lift", true, testLogger())
	lifts, err := sync.List(ctx)
	require.NoError(t, err)
	require.Len(t, lifts, 1)
	assert.Equal(t, int64(2), lifts[0].ID)

	all := NewLiftSynchronizer(s, &capturingPublisher{}, "dz/lift", false, testLogger())
	lifts, err = all.List(ctx)
	require.NoError(t, err)
	assert.Len(t, lifts, 2)
}
