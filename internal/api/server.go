package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/alerts"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/metrics"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/monitoring"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/rules"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/storage"
)

const (
	triggerTimeout  = 30 * time.Minute
	defaultHotLimit = 20
)

// Server exposes statistics, rules, alerts and pipeline triggers over HTTP.
// Alert status changes always go through the lifecycle manager.
type Server struct {
	service *monitoring.Service
	store   storage.Store
	alerts  *alerts.Manager
	now     func() time.Time
	newID   func() string
}

// NewServer creates a new HTTP API over the pipeline service
func NewServer(service *monitoring.Service) *Server {
	return &Server{
		service: service,
		store:   service.Store(),
		alerts:  service.Alerts(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/statistics", s.handleStatistics).Methods(http.MethodGet)
	router.HandleFunc("/keywords/hot", s.handleHotKeywords).Methods(http.MethodGet)

	router.HandleFunc("/records", s.handleListRecords).Methods(http.MethodGet)
	router.HandleFunc("/records", s.handleUpsertRecords).Methods(http.MethodPost)
	router.HandleFunc("/records/{id}", s.handleDeleteRecord).Methods(http.MethodDelete)

	router.HandleFunc("/rules", s.handleListRules).Methods(http.MethodGet)
	router.HandleFunc("/rules", s.handleCreateRule).Methods(http.MethodPost)
	router.HandleFunc("/rules/{id}", s.handleUpdateRule).Methods(http.MethodPut)
	router.HandleFunc("/rules/{id}", s.handleDeleteRule).Methods(http.MethodDelete)

	router.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	router.HandleFunc("/alerts/{id}", s.handleTransitionAlert).Methods(http.MethodPatch)

	router.HandleFunc("/trigger", s.handleTrigger).Methods(http.MethodPost)
	router.HandleFunc("/reports", s.handleReport).Methods(http.MethodPost)

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.service.GetMetrics()))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHotKeywords(w http.ResponseWriter, r *http.Request) {
	limit := defaultHotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	hot, err := s.service.HotKeywords(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, hot)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	source := models.SourceType(r.URL.Query().Get("source"))
	if source != "" && !source.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("source must be media_article or social_post"))
		return
	}

	var records []models.ContentRecord
	var err error
	if query := r.URL.Query().Get("q"); query != "" {
		records, err = s.service.SearchRecords(r.Context(), query, source)
	} else {
		records, err = s.store.ListRecords(r.Context(), source)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleUpsertRecords(w http.ResponseWriter, r *http.Request) {
	var records []models.ContentRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("body must be a JSON array of records"))
		return
	}

	for i := range records {
		if !records[i].Type.Valid() {
			writeError(w, http.StatusBadRequest, errors.New("every record needs type media_article or social_post"))
			return
		}
		if records[i].ID == "" {
			records[i].ID = s.newID()
		}
		if records[i].PublishedAt.IsZero() {
			records[i].PublishedAt = s.now()
		}
	}

	if err := s.service.ImportRecords(r.Context(), records); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"stored": len(records), "ids": ids})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, err := s.service.DeleteRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, storage.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := s.store.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleSet)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.WarningRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := rules.Validate(rule); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if rule.ID == "" {
		rule.ID = s.newID()
	}
	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.store.CreateRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	existing, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var rule models.WarningRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rule.ID = id
	if err := rules.Validate(rule); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now()

	if err := s.store.UpdateRule(r.Context(), rule); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRule(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	status := models.AlertStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("unknown alert status"))
		return
	}

	list, err := s.alerts.List(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type transitionRequest struct {
	Status models.AlertStatus `json:"status"`
}

func (s *Server) handleTransitionAlert(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("unknown alert status"))
		return
	}

	alert, err := s.alerts.Transition(r.Context(), mux.Vars(r)["id"], req.Status)
	switch {
	case errors.Is(err, alerts.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeStoreError(w, err)
	default:
		writeJSON(w, http.StatusOK, alert)
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()

		if _, err := s.service.RunPipeline(ctx); err != nil {
			logrus.Errorf("Manual pipeline trigger failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Pipeline triggered successfully"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period != "" && period != "daily" && period != "weekly" {
		writeError(w, http.StatusBadRequest, errors.New("period must be daily or weekly"))
		return
	}

	report, err := s.service.GenerateReport(r.Context(), period)
	if err != nil && report == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err != nil {
		logrus.Warnf("Report generated but not delivered: %v", err)
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
