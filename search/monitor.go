package search

import "github.com/chatvault/chatvault/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterCandidateListing(count int)
	AfterLexicalScoring(hits int)
	AfterSemanticSearch(matches []core.SimilarityMatch)
	SemanticDegraded(err error)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                               {}
func (n *noopMonitor) AfterCandidateListing(_ int)                  {}
func (n *noopMonitor) AfterLexicalScoring(_ int)                    {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.SimilarityMatch) {}
func (n *noopMonitor) SemanticDegraded(_ error)                     {}
func (n *noopMonitor) Finish(_ []*Result)                           {}
