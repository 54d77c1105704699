package trend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelBot/internal/domain"
)

type mockTrendRepo struct {
	created   []domain.Trend
	createErr error
}

func (m *mockTrendRepo) ListTrends(ctx context.Context) ([]domain.Trend, error) {
	return m.created, nil
}

func (m *mockTrendRepo) CreateTrend(ctx context.Context, trend *domain.Trend) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.created = append(m.created, *trend)
	return int64(len(m.created) + 10), nil
}

func TestTracker_AppendCorrection(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	up := domain.Trend{ID: 1, Direction: domain.TrendUp, Kind: domain.TrendNormal}

	tests := []struct {
		name         string
		polarity     Polarity
		trends       []domain.Trend
		wantAppended bool
		wantDir      domain.TrendDirection
	}{
		{name: "opposite polarity flips direction", polarity: PolarityOpposite, trends: []domain.Trend{up}, wantAppended: true, wantDir: domain.TrendDown},
		{name: "same polarity keeps direction", polarity: PolaritySame, trends: []domain.Trend{up}, wantAppended: true, wantDir: domain.TrendUp},
		{
			name:     "already in correction is a no-op",
			polarity: PolarityOpposite,
			trends: []domain.Trend{up, {ID: 2, Direction: domain.TrendDown, Kind: domain.TrendCorrection}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockTrendRepo{}
			tracker := NewTracker(repo, tt.polarity)

			out, appended, err := tracker.AppendCorrection(context.Background(), tt.trends, *Last(tt.trends), now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAppended, appended)

			if !tt.wantAppended {
				assert.Equal(t, tt.trends, out)
				assert.Empty(t, repo.created)
				return
			}
			require.Len(t, out, len(tt.trends)+1)
			last := Last(out)
			assert.Equal(t, tt.wantDir, last.Direction)
			assert.True(t, last.IsCorrection())
			assert.NotZero(t, last.ID)
			assert.Len(t, tt.trends, 1, "input log must not be modified")
		})
	}
}

func TestTracker_AppendCorrectionStoreFailure(t *testing.T) {
	repo := &mockTrendRepo{createErr: assert.AnError}
	tracker := NewTracker(repo, PolarityOpposite)
	trends := []domain.Trend{{ID: 1, Direction: domain.TrendUp, Kind: domain.TrendNormal}}

	out, appended, err := tracker.AppendCorrection(context.Background(), trends, trends[0], time.Now())
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, appended)
	assert.Equal(t, trends, out)
}

func TestParsePolarity(t *testing.T) {
	p, err := ParsePolarity("")
	require.NoError(t, err)
	assert.Equal(t, PolarityOpposite, p)

	p, err = ParsePolarity("SAME")
	require.NoError(t, err)
	assert.Equal(t, PolaritySame, p)

	_, err = ParsePolarity("sideways")
	assert.Error(t, err)
}

func TestLast(t *testing.T) {
	assert.Nil(t, Last(nil))
	last := Last([]domain.Trend{{ID: 1}, {ID: 2}})
	require.NotNil(t, last)
	assert.Equal(t, int64(2), last.ID)
}
