package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/ai"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/config"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/monitoring"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/storage"
)

// MockNotificationService is a mock implementation of the notification service
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendReport(report *models.Report) error {
	return m.Called(report).Error(0)
}

func (m *MockNotificationService) SendAlert(alert *models.AlertRecord) error {
	return m.Called(alert).Error(0)
}

var now = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

type testAPI struct {
	handler  http.Handler
	store    *storage.MemoryStore
	notifier *MockNotificationService
	service  *monitoring.Service
}

func newTestAPI(t *testing.T) *testAPI {
	cfg := &config.Config{
		ReportSchedule:    "daily",
		TimeZone:          "UTC",
		StatsWindowDays:   7,
		EnrichBatchSize:   5,
		EnrichConcurrency: 1,
		SuggestionLevel:   models.LevelHigh,
		NotifyLevel:       models.LevelHigh,
	}

	store := storage.NewMemoryStore()
	notifier := &MockNotificationService{}
	service := monitoring.NewService(cfg, store, nil, notifier, ai.NewLexiconEnricher(), nil).
		WithClock(func() time.Time { return now })

	server := NewServer(service)
	server.now = func() time.Time { return now }

	return &testAPI{handler: server.Router(), store: store, notifier: notifier, service: service}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestRecordsAndStatistics(t *testing.T) {
	a := newTestAPI(t)

	records := []models.ContentRecord{
		models.NewSocialPost("p1", "terrible service, I want to complain", now.Add(-time.Hour), models.SocialPost{UserName: "bob"}),
		models.NewMediaArticle("", "A great and helpful product", now.Add(-2*time.Hour), models.MediaArticle{Title: "Review", Source: "news.example.com"}),
	}
	rec := a.do(t, http.MethodPost, "/records", records)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored := decode[struct {
		Stored int      `json:"stored"`
		IDs    []string `json:"ids"`
	}](t, rec)
	assert.Equal(t, 2, stored.Stored)
	assert.Equal(t, "p1", stored.IDs[0])
	assert.NotEmpty(t, stored.IDs[1], "missing ids are generated")

	rec = a.do(t, http.MethodGet, "/records?source=social_post", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.ContentRecord](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/records?source=forum", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := a.service.RunEnrichment(context.Background(), false)
	require.NoError(t, err)

	rec = a.do(t, http.MethodGet, "/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.Statistics](t, rec)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.Unanalyzed)
	assert.Equal(t, 1, stats.SentimentDistribution.Negative)
	assert.Equal(t, 1, stats.SentimentDistribution.Positive)

	rec = a.do(t, http.MethodGet, "/keywords/hot?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.LessOrEqual(t, len(decode[[]models.HotKeyword](t, rec)), 3)

	rec = a.do(t, http.MethodGet, "/keywords/hot?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodDelete, "/records/p1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodDelete, "/records/p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecords_Search(t *testing.T) {
	a := newTestAPI(t)

	records := []models.ContentRecord{
		models.NewSocialPost("p1", "快递延误，我要投诉", now.Add(-time.Hour), models.SocialPost{UserName: "bob"}),
		models.NewSocialPost("p2", "今天天气不错", now.Add(-time.Hour), models.SocialPost{UserName: "carol", TopicTags: []string{"投诉"}}),
		models.NewMediaArticle("a1", "Regulators respond", now.Add(-2*time.Hour), models.MediaArticle{Title: "消费者投诉激增", Source: "news.example.com"}),
		models.NewMediaArticle("a2", "Unrelated story", now.Add(-3*time.Hour), models.MediaArticle{Title: "Weather", Source: "news.example.com"}),
	}
	rec := a.do(t, http.MethodPost, "/records", records)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	complaint := url.QueryEscape("投诉")
	tests := []struct {
		name string
		path string
		ids  []string
	}{
		{name: "body, tags and title", path: "/records?q=" + complaint, ids: []string{"p1", "p2", "a1"}},
		{name: "narrowed to articles", path: "/records?q=" + complaint + "&source=media_article", ids: []string{"a1"}},
		{name: "narrowed to posts", path: "/records?q=" + complaint + "&source=social_post", ids: []string{"p1", "p2"}},
		{name: "no match", path: "/records?q=recall", ids: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			ids := []string{}
			for _, record := range decode[[]models.ContentRecord](t, rec) {
				ids = append(ids, record.ID)
			}
			assert.ElementsMatch(t, tt.ids, ids)
		})
	}
}

func TestRecords_RejectsUnknownType(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodPost, "/records", []map[string]string{{"id": "x", "content": "hello"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRulesCRUD(t *testing.T) {
	a := newTestAPI(t)

	rule := models.WarningRule{
		Name:    "Complaints",
		Type:    models.RuleKeyword,
		Level:   models.LevelHigh,
		Enabled: true,
		Config:  models.RuleConfig{Keyword: &models.KeywordConfig{Terms: []string{"投诉"}}},
	}
	rec := a.do(t, http.MethodPost, "/rules", rule)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.WarningRule](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.CreatedAt.Equal(now))

	invalid := rule
	invalid.Type = models.RuleSentiment
	rec = a.do(t, http.MethodPost, "/rules", invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "sentiment rule without its config")

	created.Level = models.LevelLow
	rec = a.do(t, http.MethodPut, "/rules/"+created.ID, created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.LevelLow, decode[models.WarningRule](t, rec).Level)

	rec = a.do(t, http.MethodPut, "/rules/missing", created)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.WarningRule](t, rec), 1)

	rec = a.do(t, http.MethodDelete, "/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodDelete, "/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertTransitions(t *testing.T) {
	ctx := context.Background()
	a := newTestAPI(t)

	admission, err := a.service.Alerts().Admit(ctx, models.AlertRecord{
		RuleID:      "r1",
		RuleName:    "Complaints",
		Level:       models.LevelHigh,
		ContentID:   "p1",
		ContentType: models.SourceSocialPost,
		Reason:      "Matched keywords: 投诉",
	})
	require.NoError(t, err)
	id := admission.Alert.ID

	rec := a.do(t, http.MethodGet, "/alerts?status=unhandled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.AlertRecord](t, rec), 1)

	tests := []struct {
		name   string
		id     string
		status string
		code   int
	}{
		{name: "start processing", id: id, status: "processing", code: http.StatusOK},
		{name: "back to unhandled", id: id, status: "unhandled", code: http.StatusConflict},
		{name: "resolve", id: id, status: "resolved", code: http.StatusOK},
		{name: "reopen resolved", id: id, status: "processing", code: http.StatusConflict},
		{name: "unknown status", id: id, status: "archived", code: http.StatusBadRequest},
		{name: "unknown alert", id: "missing", status: "resolved", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPatch, "/alerts/"+tt.id, map[string]string{"status": tt.status})
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec = a.do(t, http.MethodGet, "/alerts?status=resolved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[[]models.AlertRecord](t, rec)
	require.Len(t, resolved, 1)
	assert.Equal(t, "Complaints", resolved[0].RuleName)

	rec = a.do(t, http.MethodGet, "/alerts?status=closed", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReport(t *testing.T) {
	a := newTestAPI(t)
	a.notifier.On("SendReport", mock.Anything).Return(nil)

	rec := a.do(t, http.MethodPost, "/reports?period=weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[models.Report](t, rec)
	assert.Equal(t, "weekly", report.Period)

	rec = a.do(t, http.MethodPost, "/reports?period=hourly", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndMetrics(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run_count")

	rec = a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
