package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"docuquery/internal/contextutil"
	"docuquery/internal/service"
	"docuquery/internal/vectorstore"
)

// Candidate is an ephemeral retrieval hit with its similarity score
// normalized to [0,1].
type Candidate struct {
	ChunkID    string
	DocumentID string
	Version    int
	Ordinal    int
	Score      float64
	CharStart  int
	CharEnd    int
}

// Result carries the candidates and the confidence signal. Fault marks a
// connectivity/configuration failure of the index, distinct from "no
// relevant content": the router routes faults to failed rather than fallback.
type Result struct {
	Candidates []Candidate
	Confidence float64
	Fault      bool
	Reason     string
}

// Policy holds the tunable confidence formula parameters. Exact values are a
// policy decision, not a correctness requirement.
type Policy struct {
	// SupportThreshold is the score at or above which a candidate counts as
	// supporting evidence.
	SupportThreshold float64
	// WeightTopScore, WeightGap and WeightSupport blend the top score, the
	// gap to the second score, and the supporting-candidate fraction.
	WeightTopScore float64
	WeightGap      float64
	WeightSupport  float64
}

// Ranker converts a query vector into scored, deduplicated candidates plus a
// confidence signal derived from the score distribution.
type Ranker struct {
	store  vectorstore.VectorStore
	policy Policy
	logger *slog.Logger
}

// NewRanker creates a Ranker over a vector store.
func NewRanker(store vectorstore.VectorStore, policy Policy) *Ranker {
	return &Ranker{
		store:  store,
		policy: policy,
		logger: slog.Default(),
	}
}

// Retrieve queries the index for the topK nearest chunks. Index
// unreachability and zero candidates are degradation inputs, not errors:
// both return a Result with confidence 0. Only contract violations (bad
// topK) return a non-nil error.
func (r *Ranker) Retrieve(ctx context.Context, queryVector []float32, topK int, filter *vectorstore.Filter) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		return Result{}, &service.ValidationError{Field: "top_k", Message: "must be greater than 0"}
	}

	hits, err := r.store.Query(ctx, queryVector, topK, filter)
	if err != nil {
		if errors.Is(err, service.ErrIndexUnavailable) {
			logger.WarnContext(ctx, "vector index unreachable", "error", err)
			return Result{Candidates: []Candidate{}, Confidence: 0, Fault: true, Reason: "index_unavailable"}, nil
		}
		return Result{}, err
	}

	if len(hits) == 0 {
		return Result{Candidates: []Candidate{}, Confidence: 0, Reason: "no_candidates"}, nil
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, Candidate{
			ChunkID:    hit.PointID,
			DocumentID: hit.DocumentID,
			Version:    hit.Version,
			Ordinal:    hit.Ordinal,
			Score:      clamp01(float64(hit.Score)),
			CharStart:  hit.CharStart,
			CharEnd:    hit.CharEnd,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	candidates = dedupeOverlapping(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	confidence := r.confidence(candidates)
	logger.DebugContext(ctx, "retrieval completed",
		"candidates", len(candidates), "confidence", confidence, "top_score", candidates[0].Score)

	return Result{Candidates: candidates, Confidence: confidence}, nil
}

// dedupeOverlapping removes candidates that land on the same document
// version at overlapping char spans, keeping the highest-scoring one per
// span. Input must be sorted by descending score.
func dedupeOverlapping(candidates []Candidate) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if c.DocumentID == k.DocumentID && c.Version == k.Version &&
				c.CharStart < k.CharEnd && k.CharStart < c.CharEnd {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}

// confidence blends the top score, the gap to the second score, and the
// fraction of candidates above the support threshold. A single high score
// scores lower than several consistent high scores because the support term
// shrinks.
func (r *Ranker) confidence(candidates []Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}

	top := candidates[0].Score
	gap := top
	if len(candidates) > 1 {
		gap = top - candidates[1].Score
	}

	var supporting int
	for _, c := range candidates {
		if c.Score >= r.policy.SupportThreshold {
			supporting++
		}
	}
	support := float64(supporting) / float64(len(candidates))

	score := r.policy.WeightTopScore*top + r.policy.WeightGap*gap + r.policy.WeightSupport*support
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
