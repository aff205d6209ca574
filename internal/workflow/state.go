package workflow

import (
	"github.com/helixir/paper-search-service/internal/domain"
)

// iterationRecord captures one completed loop pass.
type iterationRecord struct {
	Strategy   domain.SearchStrategy
	Collection domain.PaperCollection
	Feedback   *domain.UserFeedback
}

// runState is the engine's accumulated state across iterations. Strategies
// accumulate for the whole run; feedback only carries forward one step.
type runState struct {
	iterations  []iterationRecord
	accumulated []domain.Paper
	seen        map[string]bool
}

func newRunState() *runState {
	return &runState{seen: map[string]bool{}}
}

// recordIteration appends one completed pass.
func (s *runState) recordIteration(rec iterationRecord) {
	s.iterations = append(s.iterations, rec)
}

// previousStrategies returns every strategy tried so far, in order.
func (s *runState) previousStrategies() []domain.SearchStrategy {
	strategies := make([]domain.SearchStrategy, 0, len(s.iterations))
	for _, rec := range s.iterations {
		strategies = append(strategies, rec.Strategy)
	}
	return strategies
}

// latestFeedback returns the feedback from the most recent iteration only;
// older feedback has already shaped the strategies that followed it.
func (s *runState) latestFeedback() *domain.UserFeedback {
	if len(s.iterations) == 0 {
		return nil
	}
	return s.iterations[len(s.iterations)-1].Feedback
}

// accumulate saves papers the reviewer marked relevant mid-run so they
// survive into the final collection. The first record seen for an ID wins.
func (s *runState) accumulate(papers []domain.Paper, markedIDs []string) {
	marked := make(map[string]bool, len(markedIDs))
	for _, id := range markedIDs {
		marked[id] = true
	}
	for _, p := range papers {
		if marked[p.ID] && !s.seen[p.ID] {
			s.seen[p.ID] = true
			s.accumulated = append(s.accumulated, p)
		}
	}
}

// accumulatedPapers returns the reviewer-marked papers saved so far.
func (s *runState) accumulatedPapers() []domain.Paper {
	return s.accumulated
}

// mergeAccumulated appends accumulated papers the collection lacks, after
// the collection's own papers. The collection's papers win on ID collision.
func (s *runState) mergeAccumulated(coll domain.PaperCollection) domain.PaperCollection {
	if len(s.accumulated) == 0 {
		return coll
	}

	have := make(map[string]bool, len(coll.Papers))
	for _, p := range coll.Papers {
		have[p.ID] = true
	}

	var extra []domain.Paper
	for _, p := range s.accumulated {
		if !have[p.ID] {
			extra = append(extra, p)
		}
	}
	if len(extra) == 0 {
		return coll
	}

	merged := make([]domain.Paper, 0, len(coll.Papers)+len(extra))
	merged = append(merged, coll.Papers...)
	merged = append(merged, extra...)
	coll.Papers = merged
	return coll
}

// lastCollection returns the most recent non-empty iteration collection and
// whether one exists.
func (s *runState) lastCollection() (domain.PaperCollection, bool) {
	for i := len(s.iterations) - 1; i >= 0; i-- {
		if len(s.iterations[i].Collection.Papers) > 0 {
			return s.iterations[i].Collection, true
		}
	}
	if len(s.iterations) > 0 {
		return s.iterations[len(s.iterations)-1].Collection, true
	}
	return domain.PaperCollection{}, false
}
