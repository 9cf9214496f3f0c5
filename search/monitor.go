package search

import (
	"github.com/poiesic/healthrag/core"
	"github.com/poiesic/healthrag/index"
)

// Monitor provides hooks to observe the search pipeline.
// Implement this interface to track intermediate stages during search.
type Monitor interface {
	Start(query string)
	AfterExpansion(expansion core.Expansion)
	AfterRetrieval(hits []index.Hit)
	CandidateDropped(id core.ID, err error)
	Finish(results []core.SearchResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                      {}
func (n *noopMonitor) AfterExpansion(_ core.Expansion)     {}
func (n *noopMonitor) AfterRetrieval(_ []index.Hit)        {}
func (n *noopMonitor) CandidateDropped(_ core.ID, _ error) {}
func (n *noopMonitor) Finish(_ []core.SearchResult)        {}
