// Copyright 2025 Chatvault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chatvault/chatvault/ingestion"
	"github.com/chatvault/chatvault/search"
	"github.com/chatvault/chatvault/storage"
)

// defaultUserID identifies requests that carry no X-User-ID header. Real
// authentication sits in front of this service.
const defaultUserID = "default"

// maxQueryLength bounds the search query text.
const maxQueryLength = 1000

// Pinger reports storage reachability for the health probe.
type Pinger interface {
	Ping() error
}

// Server exposes the HTTP surface: search, uploads and conversation
// listings under /api/v1, plus a health probe.
type Server struct {
	searcher      *search.Searcher
	pipeline      *ingestion.Pipeline
	conversations storage.ConversationRepository
	uploads       storage.UploadRepository
	pinger        Pinger
	logger        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer wires the handlers to their collaborators.
func NewServer(
	searcher *search.Searcher,
	pipeline *ingestion.Pipeline,
	conversations storage.ConversationRepository,
	uploads storage.UploadRepository,
	pinger Pinger,
	opts ...Option,
) *Server {
	s := &Server{
		searcher:      searcher,
		pipeline:      pipeline,
		conversations: conversations,
		uploads:       uploads,
		pinger:        pinger,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/uploads/{provider}", s.handleCreateUpload)
		r.Get("/uploads/{id}", s.handleGetUpload)
		r.Get("/conversations", s.handleListConversations)
	})

	return r
}

// userID resolves the request's user identity.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(); err != nil {
		s.logger.Error("storage unreachable", "err", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "degraded",
			"storage": "unreachable",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"storage": "reachable",
	})
}
