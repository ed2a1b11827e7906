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

package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/chatvault/chatvault/ai"
	"github.com/chatvault/chatvault/backfill"
	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

const (
	// DefaultAlpha is the hybrid weighting factor when the caller leaves it unset.
	DefaultAlpha = 0.5

	defaultLimit           = 10
	defaultSemanticTimeout = 5 * time.Second
)

// Query describes one search invocation. The zero value is not usable; Text
// and UserId are required, everything else has a working default.
type Query struct {
	Text string
	Mode core.SearchMode // zero means hybrid

	// Alpha weights the semantic score in hybrid mode; nil means DefaultAlpha.
	Alpha *float64

	// Threshold drops results scoring below it, applied before pagination.
	Threshold float64

	Limit  int // zero means defaultLimit
	Offset int

	// Filters. They apply as hard predicates before any scoring.
	UserId    string
	Provider  core.Provider
	Role      core.Role
	ProjectId string
	From      time.Time
	To        time.Time

	// IncludeContext loads each hit's full conversation timeline.
	IncludeContext bool
}

// Validate checks the caller-supplied parameters.
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyQuery
	}
	if q.Alpha != nil && (*q.Alpha < 0 || *q.Alpha > 1) {
		return ErrInvalidAlpha
	}
	if q.Threshold < 0 || q.Threshold > 1 {
		return ErrInvalidThreshold
	}
	if q.Offset < 0 {
		return ErrInvalidOffset
	}
	return nil
}

func (q *Query) mode() core.SearchMode {
	if q.Mode == 0 {
		return core.SearchModeHybrid
	}
	return q.Mode
}

func (q *Query) alpha() float64 {
	if q.Alpha == nil {
		return DefaultAlpha
	}
	return *q.Alpha
}

func (q *Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}

// ContextMessage is one entry of a hit's conversation timeline.
type ContextMessage struct {
	Message *core.Message
	Current bool // true for the message the result points at
}

// Result is one ranked search hit.
type Result struct {
	Message       *core.Message
	Conversation  *core.Conversation
	Score         float32
	LexicalScore  float32
	SemanticScore float32
	Context       []ContextMessage
}

// Response is the outcome of one search invocation.
type Response struct {
	// Mode is the mode the ranking actually used. It differs from the
	// requested mode only when Degraded is set.
	Mode    core.SearchMode
	Results []*Result

	// Total counts matches after threshold filtering, before pagination.
	Total int

	// MissingEmbeddings counts eligible messages that had no embedding and
	// were therefore excluded from semantic ranking.
	MissingEmbeddings int

	// Degraded is set when semantic ranking was requested but unavailable
	// and the query fell back to lexical ranking.
	Degraded bool

	Elapsed time.Duration
}

// Stores bundles the repositories the searcher reads from.
type Stores struct {
	Conversations storage.ConversationRepository
	Messages      storage.MessageRepository
	Embeddings    storage.EmbeddingRepository
	SearchLogs    storage.SearchLogRepository
}

// Searcher ranks messages against a query using lexical term matching,
// embedding cosine similarity, or a weighted blend of both.
type Searcher struct {
	stores          Stores
	embedder        ai.Embedder
	model           string
	semanticTimeout time.Duration
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithSemanticTimeout bounds the embedding and similarity-scan stage. When
// the deadline passes the query degrades to lexical ranking instead of
// blocking.
func WithSemanticTimeout(timeout time.Duration) Option {
	return func(s *Searcher) error {
		if timeout > 0 {
			s.semanticTimeout = timeout
		}
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(stores Stores, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if stores.Conversations == nil {
		return nil, ErrConversationRepositoryRequired
	}
	if stores.Messages == nil {
		return nil, ErrMessageRepositoryRequired
	}
	if stores.Embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		stores:          stores,
		embedder:        provider.Embedder(),
		model:           provider.EmbeddingModel(),
		semanticTimeout: defaultSemanticTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Search executes the query and returns ranked results.
func (s *Searcher) Search(ctx context.Context, q Query) (*Response, error) {
	return s.SearchWithMonitor(ctx, q, nil)
}

// SearchWithMonitor executes the query with stage callbacks.
// The monitor receives a callback at each stage of the search process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, q Query, monitor SearchMonitor) (*Response, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	monitor.Start(q.Text)

	conversations, candidates, err := s.listCandidates(ctx, &q)
	if err != nil {
		return nil, err
	}
	monitor.AfterCandidateListing(len(candidates))

	mode := q.mode()
	resp := &Response{Mode: mode}

	// Lexical scores feed both lexical and hybrid ranking, and every
	// degradation path.
	queryTokens := tokenizeAndFilter(q.Text)
	lexScores := make(map[core.ID]float32, len(candidates))
	for _, msg := range candidates {
		if score := lexicalScore(msg.Contents, queryTokens); score > 0 {
			lexScores[msg.Id] = score
		}
	}
	monitor.AfterLexicalScoring(len(lexScores))

	var semScores map[core.ID]float32
	if mode != core.SearchModeLexical {
		semScores, resp.MissingEmbeddings, err = s.semanticScores(ctx, q.Text, candidates, monitor)
		if err != nil {
			// Semantic unavailability degrades the query, never fails it.
			s.logger.Warn("semantic ranking unavailable, degrading to lexical",
				"query", q.Text, "err", err)
			monitor.SemanticDegraded(err)
			mode = core.SearchModeLexical
			resp.Mode = mode
			resp.Degraded = true
			resp.MissingEmbeddings = 0
		}
	}

	results := s.score(mode, q.alpha(), candidates, lexScores, semScores)

	if q.Threshold > 0 {
		kept := results[:0]
		for _, r := range results {
			if float64(r.Score) >= q.Threshold {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := results[i].Message.Timestamp, results[j].Message.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].Message.Id < results[j].Message.Id
	})

	resp.Total = len(results)
	results = paginateResults(results, q.limit(), q.Offset)

	for _, r := range results {
		r.Conversation = conversations[r.Message.ConversationId]
	}
	if q.IncludeContext {
		if err := s.loadContext(ctx, results); err != nil {
			return nil, err
		}
	}

	resp.Results = results
	resp.Elapsed = time.Since(start)
	s.appendLog(ctx, &q, resp)
	monitor.Finish(results)
	return resp, nil
}

// listCandidates applies the structured filters and returns the scoped
// conversations plus every message eligible for scoring.
func (s *Searcher) listCandidates(ctx context.Context, q *Query) (map[core.ID]*core.Conversation, []*core.Message, error) {
	convs, err := s.stores.Conversations.ListConversations(ctx, storage.ConversationFilter{
		UserId:    q.UserId,
		Provider:  q.Provider,
		ProjectId: q.ProjectId,
	}, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	if len(convs) == 0 {
		return nil, nil, nil
	}

	byID := make(map[core.ID]*core.Conversation, len(convs))
	convIDs := make([]core.ID, len(convs))
	for i, conv := range convs {
		byID[conv.Id] = conv
		convIDs[i] = conv.Id
	}

	messages, err := s.stores.Messages.ListMessages(ctx, storage.MessageFilter{
		UserId:          q.UserId,
		ConversationIds: convIDs,
		Role:            q.Role,
		From:            q.From,
		To:              q.To,
	})
	if err != nil {
		return nil, nil, err
	}
	return byID, messages, nil
}

// semanticScores embeds the query and collects cosine similarities for the
// candidate set, under the semantic deadline. The returned count is how many
// candidates had no embedding for the model.
func (s *Searcher) semanticScores(ctx context.Context, text string, candidates []*core.Message, monitor SearchMonitor) (map[core.ID]float32, int, error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	semCtx, cancel := context.WithTimeout(ctx, s.semanticTimeout)
	defer cancel()

	vector, err := s.embedder.EmbedText(semCtx, text)
	if err != nil {
		return nil, 0, err
	}
	matches, err := s.stores.Embeddings.FindSimilar(semCtx, s.model, backfill.NormalizeVector(vector), 0, 0)
	if err != nil {
		return nil, 0, err
	}
	monitor.AfterSemanticSearch(matches)

	candidateIDs := make([]core.ID, len(candidates))
	inCandidates := make(map[core.ID]bool, len(candidates))
	for i, msg := range candidates {
		candidateIDs[i] = msg.Id
		inCandidates[msg.Id] = true
	}

	scores := make(map[core.ID]float32, len(matches))
	for _, match := range matches {
		if !inCandidates[match.MessageId] {
			continue
		}
		score := match.Score
		if score > 1 {
			score = 1
		}
		scores[match.MessageId] = score
	}

	missing, err := s.stores.Embeddings.MissingEmbeddings(ctx, s.model, candidateIDs...)
	if err != nil {
		s.logger.Warn("failed to count missing embeddings", "err", err)
		return scores, 0, nil
	}
	return scores, len(missing), nil
}

// score builds unranked results for the effective mode. A result only exists
// where at least one signal is positive; in semantic mode a message without
// an embedding is excluded rather than scored as zero.
func (s *Searcher) score(mode core.SearchMode, alpha float64, candidates []*core.Message, lexScores, semScores map[core.ID]float32) []*Result {
	results := make([]*Result, 0, len(lexScores)+len(semScores))
	for _, msg := range candidates {
		lex := lexScores[msg.Id]
		sem, hasSem := semScores[msg.Id]

		var score float32
		switch mode {
		case core.SearchModeLexical:
			score = lex
		case core.SearchModeSemantic:
			if !hasSem {
				continue
			}
			score = sem
		default:
			score = float32(alpha)*sem + float32(1-alpha)*lex
		}
		if score <= 0 {
			continue
		}

		results = append(results, &Result{
			Message:       msg,
			Score:         score,
			LexicalScore:  lex,
			SemanticScore: sem,
		})
	}
	return results
}

// loadContext attaches each hit's full conversation timeline.
func (s *Searcher) loadContext(ctx context.Context, results []*Result) error {
	for _, r := range results {
		messages, err := s.stores.Messages.GetConversationMessages(ctx, r.Message.ConversationId)
		if err != nil {
			return err
		}
		timeline := make([]ContextMessage, len(messages))
		for i, msg := range messages {
			timeline[i] = ContextMessage{Message: msg, Current: msg.Id == r.Message.Id}
		}
		r.Context = timeline
	}
	return nil
}

// appendLog records the invocation in the audit log. Logging never fails the
// search response.
func (s *Searcher) appendLog(ctx context.Context, q *Query, resp *Response) {
	if s.stores.SearchLogs == nil {
		return
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

	err := s.stores.SearchLogs.AppendSearchLog(ctx, &core.SearchLog{
		UserId:        q.UserId,
		Query:         q.Text,
		Mode:          q.mode(),
		Filters:       filters,
		ResultCount:   resp.Total,
		ExecutionTime: resp.Elapsed,
	})
	if err != nil {
		s.logger.Warn("failed to append search log", "err", err)
	}
}

func paginateResults(results []*Result, limit, offset int) []*Result {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
