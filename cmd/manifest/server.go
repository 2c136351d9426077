package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	apperrors "github.com/Dumbogiflen/Manifest-system/internal/errors"
	"github.com/Dumbogiflen/Manifest-system/internal/middleware"
	"github.com/Dumbogiflen/Manifest-system/internal/models"
	"github.com/Dumbogiflen/Manifest-system/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router    *mux.Router
	logger    *logrus.Logger
	server    *http.Server
	relay     *service.Relay
	lifts     *service.LiftSynchronizer
	quick     *service.QuickReplies
	projector *service.StateProjector
	cfg       *models.Config
}

func NewServer(cfg *models.Config, relay *service.Relay, lifts *service.LiftSynchronizer, quick *service.QuickReplies, projector *service.StateProjector, logger *logrus.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		relay:     relay,
		lifts:     lifts,
		quick:     quick,
		projector: projector,
		cfg:       cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState()).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/messages/ack", s.handleSendAck()).Methods(http.MethodPost)
	api.HandleFunc("/lift", s.handleSubmitLift()).Methods(http.MethodPost)
	api.HandleFunc("/quick/add", s.handleQuickAdd()).Methods(http.MethodPost)
	api.HandleFunc("/quick/remove", s.handleQuickRemove()).Methods(http.MethodPost)

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// Operator UI
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.Server.StaticDir)))
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	}
}

func (s *Server) handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := s.projector.Snapshot(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, snapshot)
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	type request struct {
		Text string `json:"text"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeBadRequest(w, "invalid JSON body")
			return
		}

		msg, warning, err := s.relay.SendMessage(r.Context(), req.Text)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		resp := map[string]interface{}{"status": "ok", "message": msg}
		if warning != "" {
			resp["warning"] = warning
		}
		s.writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *Server) handleSendAck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ack models.MessageAck
		if err := json.NewDecoder(r.Body).Decode(&ack); err != nil {
			s.writeBadRequest(w, "invalid JSON body")
			return
		}

		warning, err := s.relay.SendAck(r.Context(), ack)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		resp := map[string]interface{}{"status": "ok"}
		if warning != "" {
			resp["warning"] = warning
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleSubmitLift() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			s.writeBadRequest(w, "invalid JSON body")
			return
		}

		lift, warning, err := s.lifts.Submit(r.Context(), raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		resp := map[string]interface{}{"status": "ok", "lift": lift}
		if warning != "" {
			resp["warning"] = warning
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleQuickAdd() http.HandlerFunc {
	type request struct {
		Text string `json:"text"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeBadRequest(w, "invalid JSON body")
			return
		}

		if err := s.quick.Add(r.Context(), req.Text); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	}
}

func (s *Server) handleQuickRemove() http.HandlerFunc {
	type request struct {
		Text string `json:"text"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeBadRequest(w, "invalid JSON body")
			return
		}

		if err := s.quick.Remove(r.Context(), req.Text); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"status": "error",
		"error":  msg,
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidationFailed:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}

	if status >= 500 {
		s.logger.WithFields(logrus.Fields{
			"url":   r.URL.Path,
			"error": err,
		}).Error("Request failed")
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status": "error",
		"error":  apperrors.GetUserMessage(err),
	})
}
