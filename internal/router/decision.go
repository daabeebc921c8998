package router

// Level is the response strategy chosen for one request. Five terminal
// outcomes, decided per request and never carried across requests.
type Level string

const (
	// LevelOptimal generates over the full top-k context with citations.
	LevelOptimal Level = "optimal"
	// LevelMild generates over a reduced context window and appends a caveat.
	LevelMild Level = "mild"
	// LevelDegraded generates over the single best chunk and flags the
	// answer low-confidence.
	LevelDegraded Level = "degraded"
	// LevelFallback skips generation and assembles an extractive answer from
	// chunk excerpts verbatim.
	LevelFallback Level = "fallback"
	// LevelFailed returns no answer body, only a structured reason.
	LevelFailed Level = "failed"
)

// Thresholds partition confidence into the non-faulted bands.
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// Inputs are the complete inputs of the routing decision. The mapping is a
// pure function: same inputs always yield the same level.
type Inputs struct {
	Confidence        float64
	ProviderAvailable bool
	RetrievalFault    bool
	Candidates        int
}

// Decision is the routing outcome. Constructed only through Decide so level
// and reason always agree.
type Decision struct {
	Level      Level
	Reason     string
	Confidence float64
}

// Decide maps retrieval confidence and provider availability to a response
// strategy. A retrieval fault overrides everything: connectivity failure is
// not the same evidence as "no relevant content".
func Decide(in Inputs, t Thresholds) Decision {
	switch {
	case in.RetrievalFault:
		return Decision{Level: LevelFailed, Reason: "retrieval_fault", Confidence: in.Confidence}

	case in.Candidates == 0 && !in.ProviderAvailable:
		return Decision{Level: LevelFailed, Reason: "no_candidates_provider_unavailable", Confidence: in.Confidence}

	case in.Candidates == 0:
		return Decision{Level: LevelFallback, Reason: "no_candidates", Confidence: in.Confidence}

	case !in.ProviderAvailable:
		return Decision{Level: LevelFallback, Reason: "provider_unavailable", Confidence: in.Confidence}

	case in.Confidence >= t.High:
		return Decision{Level: LevelOptimal, Reason: "high_confidence", Confidence: in.Confidence}

	case in.Confidence >= t.Medium:
		return Decision{Level: LevelMild, Reason: "medium_confidence", Confidence: in.Confidence}

	case in.Confidence >= t.Low:
		return Decision{Level: LevelDegraded, Reason: "low_confidence", Confidence: in.Confidence}

	default:
		return Decision{Level: LevelFallback, Reason: "weak_signal", Confidence: in.Confidence}
	}
}
