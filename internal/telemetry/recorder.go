package telemetry

import "time"

// Snapshot is the per-request telemetry echoed to the caller. Field names
// are stable: the router's degradation decisions and any downstream
// monitoring key off them.
type Snapshot struct {
	LatencyRetrievalMs  int64   `json:"latency_ms_retrieval"`
	LatencyGenerationMs int64   `json:"latency_ms_generation"`
	LatencyTotalMs      int64   `json:"latency_ms_total"`
	Level               string  `json:"level"`
	Reason              string  `json:"reason,omitempty"`
	Confidence          float64 `json:"confidence"`
	CacheHit            bool    `json:"cache_hit"`
	Candidates          int     `json:"candidates"`
}

// Recorder accumulates per-request latency, route and cache facts.
// Not safe for concurrent use; each request owns one Recorder.
type Recorder struct {
	start    time.Time
	snapshot Snapshot
}

// NewRecorder starts a recorder for one request.
func NewRecorder() *Recorder {
	return &Recorder{start: time.Now()}
}

// Time measures fn and charges its duration to the named stage.
func (r *Recorder) Time(stage string, fn func()) {
	begin := time.Now()
	fn()
	elapsed := time.Since(begin).Milliseconds()

	switch stage {
	case StageRetrieval:
		r.snapshot.LatencyRetrievalMs += elapsed
	case StageGeneration:
		r.snapshot.LatencyGenerationMs += elapsed
	}
}

// Stage names accepted by Time.
const (
	StageRetrieval  = "retrieval"
	StageGeneration = "generation"
)

// SetRoute records the routing outcome.
func (r *Recorder) SetRoute(level, reason string, confidence float64) {
	r.snapshot.Level = level
	r.snapshot.Reason = reason
	r.snapshot.Confidence = confidence
}

// SetCacheHit records whether the answer came from the cache.
func (r *Recorder) SetCacheHit(hit bool) {
	r.snapshot.CacheHit = hit
}

// SetCandidates records how many candidates survived ranking.
func (r *Recorder) SetCandidates(n int) {
	r.snapshot.Candidates = n
}

// Snapshot finalizes total latency and returns the collected facts.
func (r *Recorder) Snapshot() Snapshot {
	r.snapshot.LatencyTotalMs = time.Since(r.start).Milliseconds()
	return r.snapshot
}
