package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"docuquery/internal/cache"
	"docuquery/internal/contextutil"
	"docuquery/internal/embed"
	"docuquery/internal/llm"
	"docuquery/internal/registry"
	"docuquery/internal/retrieval"
	"docuquery/internal/service"
	"docuquery/internal/telemetry"
	"docuquery/internal/vectorstore"
)

// Retriever is the ranking seam the router depends on.
type Retriever interface {
	Retrieve(ctx context.Context, queryVector []float32, topK int, filter *vectorstore.Filter) (retrieval.Result, error)
}

// Options bound the router's top_k handling. Callers must pass a positive
// top_k; defaulting a zero value is the transport layer's job.
type Options struct {
	Thresholds Thresholds
	MaxTopK    int
}

// Response is the outward answer payload. Every degradable condition yields
// a Response, never an error; only contract violations error out.
type Response struct {
	Answer     string             `json:"answer"`
	Citations  []cache.Citation   `json:"citations"`
	Level      Level              `json:"degradation_level"`
	Reason     string             `json:"reason,omitempty"`
	ActionHint string             `json:"action_hint,omitempty"`
	Confidence float64            `json:"confidence"`
	CacheHit   bool               `json:"cache_hit"`
	Telemetry  telemetry.Snapshot `json:"telemetry"`
}

// Router maps retrieval confidence and provider availability onto one of the
// five response strategies and orchestrates citation assembly. It owns the
// answer cache: no other component reads or writes it.
type Router struct {
	embedder  embed.Embedder
	retriever Retriever
	chunks    registry.ChunkStore
	generator llm.Generator
	answers   *cache.AnswerCache
	opts      Options
	logger    *slog.Logger

	// providerDownUntil holds the unix-nano deadline of the current provider
	// backoff, zero when the provider is considered up. It biases the routing
	// decision; the decision function itself stays pure. After the cooldown
	// the next eligible request probes the provider again, so an outage never
	// latches permanently.
	providerDownUntil atomic.Int64
}

// providerCooldown is how long generation is routed around after a provider
// failure before the next probe.
const providerCooldown = 30 * time.Second

// New creates a Router. All collaborators are injected so tests can
// substitute in-memory fakes.
func New(
	embedder embed.Embedder,
	retriever Retriever,
	chunks registry.ChunkStore,
	generator llm.Generator,
	answers *cache.AnswerCache,
	opts Options,
) *Router {
	r := &Router{
		embedder:  embedder,
		retriever: retriever,
		chunks:    chunks,
		generator: generator,
		answers:   answers,
		opts:      opts,
		logger:    slog.Default(),
	}
	return r
}

func (r *Router) providerAvailable() bool {
	return time.Now().UnixNano() >= r.providerDownUntil.Load()
}

// InvalidateDocument drops cached answers the given document version
// contributed to. Called on outright deletes; version bumps invalidate
// naturally through the cache key.
func (r *Router) InvalidateDocument(documentID string, version int) {
	r.answers.InvalidateForDocument(documentID, version)
}

// Answer answers a natural-language question over the indexed documents.
func (r *Router) Answer(ctx context.Context, question string, topK int) (Response, error) {
	logger := contextutil.LoggerFromContext(ctx)
	rec := telemetry.NewRecorder()

	if strings.TrimSpace(question) == "" {
		return Response{}, &service.ValidationError{Field: "question", Message: "must not be empty"}
	}
	if topK <= 0 {
		return Response{}, &service.ValidationError{Field: "top_k", Message: "must be greater than 0"}
	}
	if topK > r.opts.MaxTopK {
		topK = r.opts.MaxTopK
	}

	// Embed the question. Without a query vector there is nothing to
	// retrieve, so embedding outage routes to failed rather than erroring.
	var queryVector []float32
	var embedErr error
	rec.Time(telemetry.StageRetrieval, func() {
		var vectors [][]float32
		vectors, embedErr = r.embedder.EmbedTexts(ctx, []string{question})
		if embedErr == nil && len(vectors) > 0 {
			queryVector = vectors[0]
		}
	})
	if embedErr != nil {
		if errors.Is(embedErr, service.ErrEmbeddingUnavailable) {
			logger.WarnContext(ctx, "query embedding unavailable", "error", embedErr)
			return r.failedResponse(rec, "retrieval_fault", 0), nil
		}
		return Response{}, service.WrapError(embedErr, "failed to embed question")
	}

	var result retrieval.Result
	var retrieveErr error
	rec.Time(telemetry.StageRetrieval, func() {
		result, retrieveErr = r.retriever.Retrieve(ctx, queryVector, topK, nil)
	})
	if retrieveErr != nil {
		return Response{}, retrieveErr
	}

	candidates, texts := r.resolveTexts(ctx, result.Candidates)
	rec.SetCandidates(len(candidates))

	providerUp := r.providerAvailable()
	decision := Decide(Inputs{
		Confidence:        result.Confidence,
		ProviderAvailable: providerUp,
		RetrievalFault:    result.Fault,
		Candidates:        len(candidates),
	}, r.opts.Thresholds)

	logger.InfoContext(ctx, "degradation decision",
		"level", string(decision.Level), "reason", decision.Reason,
		"confidence", decision.Confidence, "candidates", len(candidates), "provider_up", providerUp)

	if decision.Level == LevelFailed {
		return r.failedResponse(rec, decision.Reason, decision.Confidence), nil
	}

	key := cache.Key(question, topK, string(decision.Level), contributingVersions(candidates))
	if entry, ok := r.answers.Get(key); ok {
		rec.SetCacheHit(true)
		rec.SetRoute(entry.Level, decision.Reason, decision.Confidence)
		logger.InfoContext(ctx, "answer served from cache", "level", entry.Level)
		return Response{
			Answer:     entry.Answer,
			Citations:  entry.Citations,
			Level:      Level(entry.Level),
			Reason:     entry.Reason,
			ActionHint: actionHint(decision.Reason),
			Confidence: decision.Confidence,
			CacheHit:   true,
			Telemetry:  rec.Snapshot(),
		}, nil
	}

	response := r.compose(ctx, rec, decision, question, candidates, texts)

	if response.Level != LevelFailed {
		finalKey := key
		if response.Level != decision.Level {
			// Generation failed mid-request and the level was downgraded;
			// store under the key the downgraded route will look up.
			finalKey = cache.Key(question, topK, string(response.Level), contributingVersions(candidates))
		}
		r.answers.Put(finalKey, cache.Entry{
			Answer:       response.Answer,
			Citations:    response.Citations,
			Level:        string(response.Level),
			Reason:       response.Reason,
			Confidence:   response.Confidence,
			LowConfident: response.Level == LevelDegraded,
		})
	}

	return response, nil
}

// compose builds the answer for a non-failed decision, downgrading to
// extractive fallback when generation is refused mid-request.
func (r *Router) compose(
	ctx context.Context,
	rec *telemetry.Recorder,
	decision Decision,
	question string,
	candidates []retrieval.Candidate,
	texts map[string]string,
) Response {
	logger := contextutil.LoggerFromContext(ctx)

	contextChunks := candidates
	switch decision.Level {
	case LevelMild:
		// Reduced context window: keep the better half.
		reduced := (len(candidates) + 1) / 2
		contextChunks = candidates[:reduced]
	case LevelDegraded:
		contextChunks = candidates[:1]
	case LevelFallback:
		return r.extractive(rec, decision, candidates, texts)
	}

	chunkTexts := make([]string, len(contextChunks))
	for i, c := range contextChunks {
		chunkTexts[i] = texts[c.ChunkID]
	}

	var answer string
	var genErr error
	rec.Time(telemetry.StageGeneration, func() {
		answer, genErr = r.generator.GenerateAnswer(ctx, question, chunkTexts)
	})
	if genErr != nil {
		r.providerDownUntil.Store(time.Now().Add(providerCooldown).UnixNano())
		logger.WarnContext(ctx, "generation failed, downgrading to fallback", "error", genErr)

		downgraded := Decision{Level: LevelFallback, Reason: "provider_unavailable", Confidence: decision.Confidence}
		return r.extractive(rec, downgraded, candidates, texts)
	}
	r.providerDownUntil.Store(0)

	rec.SetRoute(string(decision.Level), decision.Reason, decision.Confidence)
	return Response{
		Answer:     answer,
		Citations:  citationsFor(contextChunks, texts, false),
		Level:      decision.Level,
		Reason:     userMessage(decision.Reason),
		ActionHint: actionHint(decision.Reason),
		Confidence: decision.Confidence,
		Telemetry:  rec.Snapshot(),
	}
}

// extractive assembles a verbatim-excerpt answer. It never calls the
// generation provider and succeeds whenever any candidate exists.
func (r *Router) extractive(
	rec *telemetry.Recorder,
	decision Decision,
	candidates []retrieval.Candidate,
	texts map[string]string,
) Response {
	rec.SetRoute(string(decision.Level), decision.Reason, decision.Confidence)

	if len(candidates) == 0 {
		return Response{
			Answer:     userMessage("no_candidates"),
			Citations:  []cache.Citation{},
			Level:      LevelFallback,
			Reason:     userMessage(decision.Reason),
			ActionHint: actionHint(decision.Reason),
			Confidence: decision.Confidence,
			Telemetry:  rec.Snapshot(),
		}
	}

	quoted := candidates
	if len(quoted) > maxFallbackExcerpts {
		quoted = quoted[:maxFallbackExcerpts]
	}

	var b strings.Builder
	b.WriteString(fallbackPreface)
	for _, c := range quoted {
		b.WriteString("\n\n")
		b.WriteString(excerpt(texts[c.ChunkID]))
	}

	return Response{
		Answer:     b.String(),
		Citations:  citationsFor(quoted, texts, true),
		Level:      decision.Level,
		Reason:     userMessage(decision.Reason),
		ActionHint: actionHint(decision.Reason),
		Confidence: decision.Confidence,
		Telemetry:  rec.Snapshot(),
	}
}

func (r *Router) failedResponse(rec *telemetry.Recorder, reason string, confidence float64) Response {
	rec.SetRoute(string(LevelFailed), reason, confidence)
	return Response{
		Citations:  []cache.Citation{},
		Level:      LevelFailed,
		Reason:     userMessage(reason),
		ActionHint: actionHint(reason),
		Confidence: confidence,
		Telemetry:  rec.Snapshot(),
	}
}

// resolveTexts loads chunk text for the candidates, dropping candidates
// whose text no longer exists (deleted between query and fetch).
func (r *Router) resolveTexts(ctx context.Context, candidates []retrieval.Candidate) ([]retrieval.Candidate, map[string]string) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(candidates) == 0 {
		return candidates, map[string]string{}
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}

	records, err := r.chunks.GetByIDs(ctx, ids)
	if err != nil {
		logger.WarnContext(ctx, "failed to load chunk texts", "error", err)
		return nil, map[string]string{}
	}

	texts := make(map[string]string, len(records))
	for _, rec := range records {
		texts[rec.ID] = rec.Text
	}

	kept := make([]retrieval.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := texts[c.ChunkID]; ok {
			kept = append(kept, c)
		}
	}
	if len(kept) < len(candidates) {
		logger.WarnContext(ctx, "dropped candidates without stored text", "dropped", len(candidates)-len(kept))
	}
	return kept, texts
}

const (
	maxFallbackExcerpts = 3
	maxExcerptRunes     = 300
	previewRunes        = 160
)

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= maxExcerptRunes {
		return text
	}
	return string(runes[:maxExcerptRunes]) + "…"
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "…"
}

// citationsFor builds citations from the chunks actually used. For
// extractive answers the excerpt is exactly the quoted text; for generated
// answers it is a short preview.
func citationsFor(candidates []retrieval.Candidate, texts map[string]string, quotedVerbatim bool) []cache.Citation {
	citations := make([]cache.Citation, 0, len(candidates))
	for _, c := range candidates {
		text := texts[c.ChunkID]
		cited := preview(text)
		if quotedVerbatim {
			cited = excerpt(text)
		}
		citations = append(citations, cache.Citation{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Version:    c.Version,
			Ordinal:    c.Ordinal,
			Excerpt:    cited,
		})
	}
	return citations
}

// contributingVersions collapses the candidate set into the document version
// map embedded in the cache key.
func contributingVersions(candidates []retrieval.Candidate) map[string]int {
	versions := make(map[string]int, len(candidates))
	for _, c := range candidates {
		if existing, ok := versions[c.DocumentID]; !ok || c.Version > existing {
			versions[c.DocumentID] = c.Version
		}
	}
	return versions
}
