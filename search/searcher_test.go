package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/ai/mock"
	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage/badger"
)

const searchTestUser = "test-user"

// fixture bundles the store, a controllable embedder and the searcher under
// test. Vectors are injected per text so similarity rankings are exact.
type fixture struct {
	store    *badger.Store
	embedder *mock.MockEmbedder
	searcher *Searcher
	vectors  map[string][]float32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:    store,
		embedder: mock.NewMockEmbedder(),
		vectors:  make(map[string][]float32),
	}
	f.embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		if vec, ok := f.vectors[text]; ok {
			return vec, nil
		}
		return []float32{0, 0, 1}, nil
	}

	provider := mock.NewMockProviderWithEmbedder(f.embedder)
	f.searcher, err = NewSearcher(Stores{
		Conversations: store.Conversations,
		Messages:      store.Messages,
		Embeddings:    store.Embeddings,
		SearchLogs:    store.SearchLogs,
	}, provider)
	require.NoError(t, err)
	return f
}

func (f *fixture) addConversation(t *testing.T, title string) *core.Conversation {
	t.Helper()
	conv, err := f.store.Conversations.PutConversation(context.Background(), &core.Conversation{
		Id:       core.IDFromContent(searchTestUser + "-" + title),
		UserId:   searchTestUser,
		Provider: core.ProviderChatGPT,
		Title:    title,
	})
	require.NoError(t, err)
	return conv
}

func (f *fixture) addMessage(t *testing.T, conv *core.Conversation, role core.Role, contents string, ts time.Time) *core.Message {
	t.Helper()
	added, err := f.store.Messages.AddMessages(context.Background(), &core.Message{
		Id:             core.IDFromContent(contents + role.String() + ts.String()),
		UserId:         searchTestUser,
		ConversationId: conv.Id,
		Role:           role,
		Contents:       contents,
		WordCount:      core.CountWords(contents),
		Timestamp:      ts,
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	return added[0]
}

// embed stores a vector for the message and registers the same vector for
// the text, so querying with the exact text yields similarity 1.
func (f *fixture) embed(t *testing.T, msg *core.Message, vector []float32) {
	t.Helper()
	f.vectors[msg.Contents] = vector
	created, err := f.store.Embeddings.PutEmbedding(context.Background(), &core.Embedding{
		MessageId: msg.Id,
		Model:     "mock-embed",
		Vector:    vector,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func lexicalQuery(text string) Query {
	return Query{Text: text, Mode: core.SearchModeLexical, UserId: searchTestUser, Limit: 100}
}

func TestNewSearcherValidation(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	stores := Stores{
		Conversations: store.Conversations,
		Messages:      store.Messages,
		Embeddings:    store.Embeddings,
		SearchLogs:    store.SearchLogs,
	}
	provider := mock.NewMockProvider()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(stores, provider)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil conversation repository", func(t *testing.T) {
		broken := stores
		broken.Conversations = nil
		_, err := NewSearcher(broken, provider)
		assert.Equal(t, ErrConversationRepositoryRequired, err)
	})

	t.Run("nil message repository", func(t *testing.T) {
		broken := stores
		broken.Messages = nil
		_, err := NewSearcher(broken, provider)
		assert.Equal(t, ErrMessageRepositoryRequired, err)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := NewSearcher(stores, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})
}

func TestQueryValidation(t *testing.T) {
	base := Query{Text: "hello", UserId: searchTestUser}

	q := base
	q.Text = "   "
	assert.ErrorIs(t, q.Validate(), ErrEmptyQuery)

	q = base
	bad := 1.5
	q.Alpha = &bad
	assert.ErrorIs(t, q.Validate(), ErrInvalidAlpha)

	q = base
	q.Threshold = -0.1
	assert.ErrorIs(t, q.Validate(), ErrInvalidThreshold)

	q = base
	q.Offset = -1
	assert.ErrorIs(t, q.Validate(), ErrInvalidOffset)

	assert.NoError(t, base.Validate())
}

func TestLexicalSearchScenario(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Greetings")
	now := time.Now().UTC().Truncate(time.Microsecond)
	f.addMessage(t, conv, core.RoleUser, "hello world", now)
	f.addMessage(t, conv, core.RoleAssistant, "goodbye world", now.Add(time.Minute))

	resp, err := f.searcher.Search(context.Background(), lexicalQuery("hello"))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "hello world", resp.Results[0].Message.Contents)
	assert.Equal(t, 1, resp.Total)
	assert.False(t, resp.Degraded)
	assert.Greater(t, resp.Results[0].Score, float32(0))
	assert.LessOrEqual(t, resp.Results[0].Score, float32(1))
}

func TestSemanticSearchExcludesUnembedded(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Vectors")
	now := time.Now().UTC().Truncate(time.Microsecond)
	exact := f.addMessage(t, conv, core.RoleUser, "kubernetes deployment", now)
	near := f.addMessage(t, conv, core.RoleUser, "container orchestration", now.Add(time.Minute))
	f.addMessage(t, conv, core.RoleUser, "not embedded yet", now.Add(2*time.Minute))

	f.embed(t, exact, []float32{1, 0, 0})
	f.embed(t, near, []float32{0.8, 0.6, 0})

	resp, err := f.searcher.Search(context.Background(), Query{
		Text:   "kubernetes deployment",
		Mode:   core.SearchModeSemantic,
		UserId: searchTestUser,
		Limit:  100,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, exact.Id, resp.Results[0].Message.Id)
	assert.Equal(t, near.Id, resp.Results[1].Message.Id)
	assert.Equal(t, 1, resp.MissingEmbeddings)
}

func TestHybridAlphaExtremes(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Blending")
	now := time.Now().UTC().Truncate(time.Microsecond)

	// Lexical favors m1 (exact terms), semantic favors m2 (closer vector).
	m1 := f.addMessage(t, conv, core.RoleUser, "alpha weighting question", now)
	m2 := f.addMessage(t, conv, core.RoleUser, "weighting", now.Add(time.Minute))
	f.embed(t, m1, []float32{0.6, 0.8, 0})
	f.embed(t, m2, []float32{1, 0, 0})
	f.vectors["alpha weighting question"] = []float32{1, 0, 0}

	zero, one := 0.0, 1.0

	lexOnly, err := f.searcher.Search(context.Background(), Query{
		Text: "alpha weighting question", Mode: core.SearchModeHybrid,
		Alpha: &zero, UserId: searchTestUser, Limit: 100,
	})
	require.NoError(t, err)
	pureLex, err := f.searcher.Search(context.Background(), lexicalQuery("alpha weighting question"))
	require.NoError(t, err)
	require.Equal(t, len(pureLex.Results), len(lexOnly.Results))
	for i := range pureLex.Results {
		assert.Equal(t, pureLex.Results[i].Message.Id, lexOnly.Results[i].Message.Id)
	}
	assert.Equal(t, m1.Id, lexOnly.Results[0].Message.Id)

	semOnly, err := f.searcher.Search(context.Background(), Query{
		Text: "alpha weighting question", Mode: core.SearchModeHybrid,
		Alpha: &one, UserId: searchTestUser, Limit: 100,
	})
	require.NoError(t, err)
	pureSem, err := f.searcher.Search(context.Background(), Query{
		Text: "alpha weighting question", Mode: core.SearchModeSemantic,
		UserId: searchTestUser, Limit: 100,
	})
	require.NoError(t, err)
	require.Equal(t, len(pureSem.Results), len(semOnly.Results))
	for i := range pureSem.Results {
		assert.Equal(t, pureSem.Results[i].Message.Id, semOnly.Results[i].Message.Id)
	}
	assert.Equal(t, m2.Id, semOnly.Results[0].Message.Id)
}

func TestDeterministicTieBreak(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Ties")
	ts := time.Now().UTC().Truncate(time.Microsecond)

	// Identical content and timestamp gives identical scores; order must
	// come down to the message id.
	a := f.addMessage(t, conv, core.RoleUser, "tie break one", ts)
	b := f.addMessage(t, conv, core.RoleAssistant, "tie break one", ts)

	lo, hi := a.Id, b.Id
	if lo > hi {
		lo, hi = hi, lo
	}

	for i := 0; i < 5; i++ {
		resp, err := f.searcher.Search(context.Background(), lexicalQuery("tie break one"))
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, lo, resp.Results[0].Message.Id)
		assert.Equal(t, hi, resp.Results[1].Message.Id)
	}
}

func TestRecentTimestampWinsAtEqualScore(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Recency")
	old := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	recent := time.Now().UTC().Truncate(time.Microsecond)

	f.addMessage(t, conv, core.RoleUser, "same lexical text", old)
	newer := f.addMessage(t, conv, core.RoleUser, "same lexical text", recent)

	resp, err := f.searcher.Search(context.Background(), lexicalQuery("same lexical text"))
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, newer.Id, resp.Results[0].Message.Id)
}

func TestHybridDegradesWhenEmbedderFails(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Outage")
	f.addMessage(t, conv, core.RoleUser, "hello world", time.Now().UTC())

	f.embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding backend unreachable")
	}

	resp, err := f.searcher.Search(context.Background(), Query{
		Text: "hello", Mode: core.SearchModeHybrid, UserId: searchTestUser, Limit: 100,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, core.SearchModeLexical, resp.Mode)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "hello world", resp.Results[0].Message.Contents)
}

func TestThresholdAppliesBeforePagination(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Cutoff")
	now := time.Now().UTC().Truncate(time.Microsecond)

	// Full coverage scores well above partial coverage.
	f.addMessage(t, conv, core.RoleUser, "exact phrase match here", now)
	f.addMessage(t, conv, core.RoleUser, "only exact overlaps", now.Add(time.Minute))

	q := lexicalQuery("exact phrase match here")
	q.Threshold = 0.5
	q.Limit = 10
	resp, err := f.searcher.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "exact phrase match here", resp.Results[0].Message.Contents)
}

func TestRoleAndProviderFilters(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Filtered")
	now := time.Now().UTC().Truncate(time.Microsecond)
	f.addMessage(t, conv, core.RoleUser, "shared keyword", now)
	fromAssistant := f.addMessage(t, conv, core.RoleAssistant, "shared keyword too", now.Add(time.Minute))

	q := lexicalQuery("shared keyword")
	q.Role = core.RoleAssistant
	resp, err := f.searcher.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, fromAssistant.Id, resp.Results[0].Message.Id)

	q = lexicalQuery("shared keyword")
	q.Provider = core.ProviderClaude
	resp, err = f.searcher.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestIncludeContextLoadsTimeline(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Context")
	now := time.Now().UTC().Truncate(time.Microsecond)
	f.addMessage(t, conv, core.RoleUser, "first message", now)
	_ = f.addMessage(t, conv, core.RoleAssistant, "needle here", now.Add(time.Minute))
	f.addMessage(t, conv, core.RoleUser, "third message", now.Add(2*time.Minute))

	q := lexicalQuery("needle")
	q.IncludeContext = true
	resp, err := f.searcher.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	timeline := resp.Results[0].Context
	require.Len(t, timeline, 3)
	assert.Equal(t, "first message", timeline[0].Message.Contents)
	assert.True(t, timeline[1].Current)
	assert.False(t, timeline[0].Current)
	assert.Equal(t, "Context", resp.Results[0].Conversation.Title)
}

func TestSearchAppendsAuditLog(t *testing.T) {
	f := newFixture(t)
	conv := f.addConversation(t, "Audited")
	f.addMessage(t, conv, core.RoleUser, "hello world", time.Now().UTC())

	q := lexicalQuery("hello")
	q.Provider = core.ProviderChatGPT
	_, err := f.searcher.Search(context.Background(), q)
	require.NoError(t, err)

	logs, err := f.store.SearchLogs.RecentSearchLogs(context.Background(), searchTestUser, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "hello", logs[0].Query)
	assert.Equal(t, core.SearchModeLexical, logs[0].Mode)
	assert.Equal(t, 1, logs[0].ResultCount)
	assert.Equal(t, "chatgpt", logs[0].Filters["provider"])
}

func TestTokenizeAndFilter(t *testing.T) {
	tokens := tokenizeAndFilter("The quick, brown FOX jumps!")
	assert.Equal(t, []string{"quick", "brown", "fox", "jumps"}, tokens)

	assert.Empty(t, tokenizeAndFilter("the a an"))
}

func TestLexicalScoreBounds(t *testing.T) {
	query := tokenizeAndFilter("hello world")

	full := lexicalScore("hello world", query)
	partial := lexicalScore("hello there everyone listening", query)
	miss := lexicalScore("completely unrelated text", query)

	assert.Greater(t, full, partial)
	assert.Greater(t, partial, float32(0))
	assert.Zero(t, miss)
	assert.LessOrEqual(t, full, float32(1))
}
