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
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/search"
)

type searchRequest struct {
	Query          string   `json:"query"`
	Mode           string   `json:"mode,omitempty"`
	Limit          *int     `json:"limit,omitempty"`
	Offset         int      `json:"offset,omitempty"`
	ProjectId      string   `json:"project_id,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	Role           string   `json:"role,omitempty"`
	DateFrom       string   `json:"date_from,omitempty"`
	DateTo         string   `json:"date_to,omitempty"`
	Alpha          *float64 `json:"alpha,omitempty"`
	Threshold      float64  `json:"threshold,omitempty"`
	IncludeContext bool     `json:"include_context,omitempty"`
}

type searchContextItem struct {
	MessageId string     `json:"message_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Current   bool       `json:"current"`
}

type searchResultItem struct {
	MessageId      string              `json:"message_id"`
	ConversationId string              `json:"conversation_id"`
	Title          string              `json:"title"`
	Provider       string              `json:"provider"`
	Role           string              `json:"role"`
	Content        string              `json:"content"`
	Timestamp      *time.Time          `json:"timestamp,omitempty"`
	WordCount      int                 `json:"word_count"`
	RelevanceScore float32             `json:"relevance_score"`
	Context        []searchContextItem `json:"context,omitempty"`
}

type searchResponse struct {
	Query             string             `json:"query"`
	Mode              string             `json:"mode"`
	Results           []searchResultItem `json:"results"`
	Total             int                `json:"total"`
	ExecutionTimeMs   float64            `json:"execution_time_ms"`
	FiltersApplied    map[string]string  `json:"filters_applied"`
	Degraded          bool               `json:"degraded,omitempty"`
	MissingEmbeddings int                `json:"missing_embeddings,omitempty"`
}

// parseSearchRequest validates the request and maps it onto a search query.
// Every violation is reported as a 400 with a descriptive message.
func parseSearchRequest(r *http.Request) (search.Query, string, error) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return search.Query{}, "invalid request body: " + err.Error(), err
	}

	q := search.Query{
		Text:           strings.TrimSpace(req.Query),
		Offset:         req.Offset,
		ProjectId:      req.ProjectId,
		Threshold:      req.Threshold,
		IncludeContext: req.IncludeContext,
		UserId:         userID(r),
		Alpha:          req.Alpha,
	}

	if q.Text == "" {
		return q, "query is required", errValidation
	}
	if len(q.Text) > maxQueryLength {
		return q, "query exceeds maximum length", errValidation
	}

	if req.Mode != "" {
		mode, err := core.ParseSearchMode(req.Mode)
		if err != nil {
			return q, "unknown mode: " + req.Mode, err
		}
		q.Mode = mode
	}

	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > 100 {
			return q, "limit must be between 1 and 100", errValidation
		}
		q.Limit = *req.Limit
	}
	if req.Offset < 0 {
		return q, "offset must not be negative", errValidation
	}
	if req.Alpha != nil && (*req.Alpha < 0 || *req.Alpha > 1) {
		return q, "alpha must be between 0 and 1", errValidation
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return q, "threshold must be between 0 and 1", errValidation
	}

	if req.Provider != "" {
		provider, err := core.ParseProvider(req.Provider)
		if err != nil {
			return q, "unknown provider: " + req.Provider, err
		}
		q.Provider = provider
	}
	if req.Role != "" {
		role, err := core.ParseRole(req.Role)
		if err != nil {
			return q, "unknown role: " + req.Role, err
		}
		q.Role = role
	}

	if req.DateFrom != "" {
		from, err := parseDate(req.DateFrom)
		if err != nil {
			return q, "invalid date_from: " + req.DateFrom, err
		}
		q.From = from
	}
	if req.DateTo != "" {
		to, err := parseDate(req.DateTo)
		if err != nil {
			return q, "invalid date_to: " + req.DateTo, err
		}
		q.To = to
	}

	return q, "", nil
}

// parseDate accepts RFC3339 timestamps or bare dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, message, err := parseSearchRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, message)
		return
	}

	resp, err := s.searcher.Search(r.Context(), q)
	if err != nil {
		s.logger.Error("search failed", "query", q.Text, "err", err)
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	results := make([]searchResultItem, 0, len(resp.Results))
	for _, hit := range resp.Results {
		item := searchResultItem{
			MessageId:      formatID(hit.Message.Id),
			ConversationId: formatID(hit.Message.ConversationId),
			Role:           hit.Message.Role.String(),
			Content:        hit.Message.Contents,
			Timestamp:      optionalTime(hit.Message.Timestamp),
			WordCount:      hit.Message.WordCount,
			RelevanceScore: hit.Score,
		}
		if hit.Conversation != nil {
			item.Title = hit.Conversation.Title
			item.Provider = hit.Conversation.Provider.String()
		}
		for _, ctxMsg := range hit.Context {
			item.Context = append(item.Context, searchContextItem{
				MessageId: formatID(ctxMsg.Message.Id),
				Role:      ctxMsg.Message.Role.String(),
				Content:   ctxMsg.Message.Contents,
				Timestamp: optionalTime(ctxMsg.Message.Timestamp),
				Current:   ctxMsg.Current,
			})
		}
		results = append(results, item)
	}

	filters := make(map[string]string)
	if q.Provider != 0 {
		filters["provider"] = q.Provider.String()
	}
	if q.Role != 0 {
		filters["role"] = q.Role.String()
	}
	if q.ProjectId != "" {
		filters["project_id"] = q.ProjectId
	}
	if !q.From.IsZero() {
		filters["date_from"] = q.From.Format(time.RFC3339)
	}
	if !q.To.IsZero() {
		filters["date_to"] = q.To.Format(time.RFC3339)
	}

	s.writeJSON(w, http.StatusOK, searchResponse{
		Query:             q.Text,
		Mode:              resp.Mode.String(),
		Results:           results,
		Total:             resp.Total,
		ExecutionTimeMs:   float64(resp.Elapsed.Microseconds()) / 1000.0,
		FiltersApplied:    filters,
		Degraded:          resp.Degraded,
		MissingEmbeddings: resp.MissingEmbeddings,
	})
}

// formatID renders message and conversation ids as strings; 64-bit values
// do not survive JSON number parsing in every client.
func formatID(id core.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
