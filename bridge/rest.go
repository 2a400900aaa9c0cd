/*
 * Copyright 2024 The Framepipe Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/engine"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errNoReplay = errors.New("no replay source configured")

// ReplayStarter starts and stops capture playback on request.
type ReplayStarter interface {
	// StartWith starts a replay; settings may override the configured
	// capture (file, intervalMs, separator)
	StartWith(settings map[string]interface{}) error
	Stop()
}

// RestServer exposes pipeline status and configuration over HTTP.
// Mode changes take effect on the next dispatched frame.
type RestServer struct {
	addr      string
	logger    types.Logger
	generator *engine.Generator
	hub       *WSHub
	replay    ReplayStarter
	server    *http.Server
}

// NewRestServer creates the server. hub may be nil to disable /ws.
func NewRestServer(addr string, generator *engine.Generator, hub *WSHub, logger types.Logger) *RestServer {
	s := &RestServer{
		addr:      addr,
		logger:    types.NewLogger(logger),
		generator: generator,
		hub:       hub,
	}
	s.server = &http.Server{Addr: addr, Handler: s.router()}
	return s
}

// SetReplay registers the replay collaborator behind /api/replay. Without
// it the endpoint answers 404.
func (s *RestServer) SetReplay(r ReplayStarter) {
	s.replay = r
}

func (s *RestServer) router() *httprouter.Router {
	router := httprouter.New()
	router.GET("/api/status", s.status)
	router.PUT("/api/mode", s.setMode)
	router.PUT("/api/threading", s.setThreading)
	router.POST("/api/template", s.loadTemplate)
	router.POST("/api/replay", s.startReplay)
	router.DELETE("/api/replay", s.stopReplay)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	if s.hub != nil {
		router.Handler(http.MethodGet, "/ws", s.hub)
	}
	return router
}

type statusResponse struct {
	Mode       string `json:"mode"`
	Threading  string `json:"threading"`
	FrameCount uint64 `json:"frameCount"`
	Template   string `json:"template,omitempty"`
}

func (s *RestServer) status(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Mode:       s.generator.OperationMode().String(),
		Threading:  s.generator.ThreadingMode().String(),
		FrameCount: s.generator.FrameCount(),
		Template:   s.generator.Store().Path(),
	})
}

func (s *RestServer) setMode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	mode, err := types.ParseOperationMode(body.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.generator.SetOperationMode(mode)
	w.WriteHeader(http.StatusNoContent)
}

func (s *RestServer) setThreading(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Threading string `json:"threading"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	mode, err := types.ParseThreadingMode(body.Threading)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.generator.SetThreadingMode(mode)
	w.WriteHeader(http.StatusNoContent)
}

func (s *RestServer) loadTemplate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.generator.Store().Load(body.Path); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *RestServer) startReplay(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.replay == nil {
		s.writeError(w, http.StatusNotFound, errNoReplay)
		return
	}
	settings := map[string]interface{}{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if err := s.replay.StartWith(settings); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *RestServer) stopReplay(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if s.replay == nil {
		s.writeError(w, http.StatusNotFound, errNoReplay)
		return
	}
	s.replay.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *RestServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("rest: write response: %s", err)
	}
}

func (s *RestServer) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// Handler returns the mux, mainly for tests.
func (s *RestServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves in the background.
func (s *RestServer) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("rest: %s", err)
		}
	}()
}

// Close shuts the server down.
func (s *RestServer) Close() error {
	return s.server.Shutdown(context.Background())
}
