package alerts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/storage"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager() (*Manager, *storage.MemoryStore, *testClock) {
	store := storage.NewMemoryStore()
	clock := &testClock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	m := NewManager(store).WithClock(clock.now)

	seq := 0
	m.newID = func() string {
		seq++
		return fmt.Sprintf("alert-%d", seq)
	}
	return m, store, clock
}

func candidate(ruleID, contentID string) models.AlertRecord {
	return models.AlertRecord{
		RuleID:      ruleID,
		RuleName:    "Complaint keywords",
		Level:       models.LevelHigh,
		ContentID:   contentID,
		ContentType: models.SourceSocialPost,
		Reason:      "Matched keywords: 投诉",
		Status:      models.StatusUnhandled,
	}
}

func TestManager_AdmitSuppressesOpenDuplicates(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newTestManager()

	first, err := m.Admit(ctx, candidate("r1", "c1"))
	require.NoError(t, err)
	assert.False(t, first.Suppressed)
	assert.Equal(t, "alert-1", first.Alert.ID)
	assert.Equal(t, models.StatusUnhandled, first.Alert.Status)
	assert.Equal(t, clock.t, first.Alert.CreatedAt)

	second, err := m.Admit(ctx, candidate("r1", "c1"))
	require.NoError(t, err)
	assert.True(t, second.Suppressed)
	assert.Equal(t, "alert-1", second.DuplicateOf)

	stored, err := store.ListAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	// processing is still open
	_, err = m.Transition(ctx, "alert-1", models.StatusProcessing)
	require.NoError(t, err)
	third, err := m.Admit(ctx, candidate("r1", "c1"))
	require.NoError(t, err)
	assert.True(t, third.Suppressed)

	clock.advance(time.Hour)
	_, err = m.Transition(ctx, "alert-1", models.StatusResolved)
	require.NoError(t, err)

	reopened, err := m.Admit(ctx, candidate("r1", "c1"))
	require.NoError(t, err)
	assert.False(t, reopened.Suppressed)
	assert.Equal(t, "alert-2", reopened.Alert.ID)

	stored, err = store.ListAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	resolved, err := store.GetAlert(ctx, "alert-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
}

func TestManager_AdmitDistinctPairs(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	for _, c := range []models.AlertRecord{candidate("r1", "c1"), candidate("r2", "c1"), candidate("r1", "c2")} {
		admission, err := m.Admit(ctx, c)
		require.NoError(t, err)
		assert.False(t, admission.Suppressed)
	}

	open, err := m.Open(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestManager_Transition(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.AlertStatus
		to      models.AlertStatus
		wantErr bool
	}{
		{name: "unhandled to processing", to: models.StatusProcessing},
		{name: "unhandled to resolved", to: models.StatusResolved},
		{name: "unhandled to ignored", to: models.StatusIgnored},
		{name: "processing to resolved", path: []models.AlertStatus{models.StatusProcessing}, to: models.StatusResolved},
		{name: "processing to ignored", path: []models.AlertStatus{models.StatusProcessing}, to: models.StatusIgnored},
		{name: "unhandled to unhandled", to: models.StatusUnhandled, wantErr: true},
		{name: "processing to unhandled", path: []models.AlertStatus{models.StatusProcessing}, to: models.StatusUnhandled, wantErr: true},
		{name: "processing to processing", path: []models.AlertStatus{models.StatusProcessing}, to: models.StatusProcessing, wantErr: true},
		{name: "resolved to unhandled", path: []models.AlertStatus{models.StatusResolved}, to: models.StatusUnhandled, wantErr: true},
		{name: "resolved to processing", path: []models.AlertStatus{models.StatusResolved}, to: models.StatusProcessing, wantErr: true},
		{name: "ignored to resolved", path: []models.AlertStatus{models.StatusIgnored}, to: models.StatusResolved, wantErr: true},
		{name: "unknown status", to: models.AlertStatus("archived"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, store, clock := newTestManager()

			admission, err := m.Admit(ctx, candidate("r1", "c1"))
			require.NoError(t, err)
			id := admission.Alert.ID

			for _, step := range tt.path {
				_, err := m.Transition(ctx, id, step)
				require.NoError(t, err)
			}

			before, err := store.GetAlert(ctx, id)
			require.NoError(t, err)

			clock.advance(time.Minute)
			got, err := m.Transition(ctx, id, tt.to)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				var te *InvalidTransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, before.Status, te.From)
				assert.Equal(t, tt.to, te.To)

				after, err := store.GetAlert(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, before, after)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, got.Status)
			assert.Equal(t, clock.t, got.UpdatedAt)
			assert.True(t, got.UpdatedAt.After(before.UpdatedAt))
			assert.Equal(t, before.CreatedAt, got.CreatedAt)
			assert.Equal(t, before.Reason, got.Reason)
		})
	}
}

func TestManager_TransitionUnknownAlert(t *testing.T) {
	m, _, _ := newTestManager()
	_, err := m.Transition(context.Background(), "missing", models.StatusResolved)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManager_List(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager()

	a, err := m.Admit(ctx, candidate("r1", "c1"))
	require.NoError(t, err)
	clock.advance(time.Minute)
	_, err = m.Admit(ctx, candidate("r1", "c2"))
	require.NoError(t, err)
	_, err = m.Transition(ctx, a.Alert.ID, models.StatusIgnored)
	require.NoError(t, err)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "c2", all[0].ContentID, "newest first")

	ignored, err := m.List(ctx, models.StatusIgnored)
	require.NoError(t, err)
	require.Len(t, ignored, 1)
	assert.Equal(t, a.Alert.ID, ignored[0].ID)

	open, err := m.Open(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "c2", open[0].ContentID)
}

// MockAlertStore is a mock implementation of storage.AlertStore
type MockAlertStore struct {
	mock.Mock
}

func (m *MockAlertStore) ListAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	args := m.Called(ctx)
	alerts, _ := args.Get(0).([]models.AlertRecord)
	return alerts, args.Error(1)
}

func (m *MockAlertStore) GetAlert(ctx context.Context, id string) (models.AlertRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.AlertRecord), args.Error(1)
}

func (m *MockAlertStore) CreateAlert(ctx context.Context, alert models.AlertRecord) error {
	return m.Called(ctx, alert).Error(0)
}

func (m *MockAlertStore) UpdateAlert(ctx context.Context, alert models.AlertRecord) error {
	return m.Called(ctx, alert).Error(0)
}

func (m *MockAlertStore) DeleteAlert(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func TestManager_StoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("database is locked")

	t.Run("list fails", func(t *testing.T) {
		store := new(MockAlertStore)
		store.On("ListAlerts", mock.Anything).Return(nil, storeErr)

		_, err := NewManager(store).Admit(ctx, candidate("r1", "c1"))
		assert.ErrorIs(t, err, storeErr)
		store.AssertNotCalled(t, "CreateAlert", mock.Anything, mock.Anything)
	})

	t.Run("create fails", func(t *testing.T) {
		store := new(MockAlertStore)
		store.On("ListAlerts", mock.Anything).Return([]models.AlertRecord{}, nil)
		store.On("CreateAlert", mock.Anything, mock.Anything).Return(storeErr)

		_, err := NewManager(store).Admit(ctx, candidate("r1", "c1"))
		assert.ErrorIs(t, err, storeErr)
		store.AssertExpectations(t)
	})
}
