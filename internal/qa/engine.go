package qa

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/llm"
	"github.com/siterag/siterag/internal/vector"
	"github.com/siterag/siterag/pkg/logger"
	"github.com/siterag/siterag/pkg/utils"
)

// RefusalAnswer is returned when retrieval yields nothing to ground on. It
// is a normal terminal outcome, not an error.
const RefusalAnswer = "I couldn't find relevant information in the index."

const (
	systemPrompt = "You are a helpful assistant that answers strictly using the provided CONTEXT. " +
		"If the answer is not present in the context, say you don't know. " +
		"Cite sources inline as [n] where n corresponds to the numbered context section. Keep the answer concise."

	userPromptFormat = "QUESTION: %s\n\n" +
		"CONTEXT (numbered sections):\n%s\n\n" +
		"Write the best possible answer using only the context above. Include inline citations [n] after the statements you derive."
)

// Context sections carry more text than display snippets; the model sees up
// to this many runes per chunk.
const maxContextRunes = 800

// LLM is the slice of the model client the engine needs.
type LLM interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// AnswerCache memoizes full answers until the index changes. Optional.
type AnswerCache interface {
	GetAnswer(ctx context.Context, answerHash string, out interface{}) (bool, error)
	SetAnswer(ctx context.Context, answerHash string, response interface{}, ttl time.Duration) error
}

type Source struct {
	URL     string
	Snippet string
}

type Timings struct {
	RetrievalMS  int64
	GenerationMS int64
	TotalMS      int64
}

type Answer struct {
	Answer  string
	Sources []Source
	Timings Timings
	Cached  bool
}

// StageError marks which pipeline stage failed, so the transport layer can
// distinguish an unreachable model from a grounding refusal.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Engine answers questions strictly from the vector index: embed the
// question, retrieve top-k chunks, generate from a numbered-context prompt
// and map inline [n] citations back to the retrieved sources.
type Engine struct {
	llm      LLM
	store    vector.Store
	cache    AnswerCache
	cacheTTL time.Duration
}

// NewEngine creates an Engine. cache may be nil when no cache is configured.
func NewEngine(llmClient LLM, store vector.Store, cache AnswerCache, cacheTTL time.Duration) *Engine {
	return &Engine{
		llm:      llmClient,
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	// Keyed on the generation model too: the same question can produce a
	// different answer after a model switch.
	cacheKey := utils.HashKey(question, strconv.Itoa(topK), e.llm.Model())
	if e.cache != nil {
		var cached Answer
		ok, err := e.cache.GetAnswer(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warn("Answer cache read failed", zap.Error(err))
		} else if ok {
			cached.Cached = true
			return &cached, nil
		}
	}

	started := time.Now()

	queryVec, err := e.llm.Embed(ctx, question)
	if err != nil {
		return nil, &StageError{Stage: "embed", Err: err}
	}

	hits, err := e.store.Query(ctx, queryVec, topK)
	if err != nil {
		return nil, &StageError{Stage: "retrieve", Err: err}
	}

	retrievalMS := time.Since(started).Milliseconds()

	if len(hits) == 0 {
		logger.Info("No relevant chunks retrieved, refusing",
			zap.String("question", question),
			zap.Int64("retrieval_ms", retrievalMS))
		return &Answer{
			Answer:  RefusalAnswer,
			Sources: []Source{},
			Timings: Timings{RetrievalMS: retrievalMS, GenerationMS: 0, TotalMS: retrievalMS},
		}, nil
	}

	sources, contextBlock := buildContext(hits)

	genStart := time.Now()
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf(userPromptFormat, question, contextBlock),
	})
	if err != nil {
		return nil, &StageError{Stage: "generate", Err: err}
	}
	generationMS := time.Since(genStart).Milliseconds()

	answer := &Answer{
		Answer:  sanitizeCitations(strings.TrimSpace(resp.Content), len(sources)),
		Sources: sources,
		Timings: Timings{
			RetrievalMS:  retrievalMS,
			GenerationMS: generationMS,
			TotalMS:      time.Since(started).Milliseconds(),
		},
	}

	if e.cache != nil {
		if err := e.cache.SetAnswer(ctx, cacheKey, answer, e.cacheTTL); err != nil {
			logger.Warn("Answer cache write failed", zap.Error(err))
		}
	}

	logger.Info("Question answered",
		zap.String("question", question),
		zap.Int("sources", len(sources)),
		zap.Int64("retrieval_ms", answer.Timings.RetrievalMS),
		zap.Int64("generation_ms", answer.Timings.GenerationMS))

	return answer, nil
}

// buildContext numbers the retrieved chunks for the prompt and builds the
// matching sources list: entry i of sources corresponds to marker [i+1].
func buildContext(hits []vector.Hit) ([]Source, string) {
	sources := make([]Source, 0, len(hits))
	sections := make([]string, 0, len(hits))

	for i, hit := range hits {
		sections = append(sections, fmt.Sprintf("[%d] URL: %s\n%s",
			i+1, hit.Metadata.SourceURL, truncateRunes(hit.Metadata.Text, maxContextRunes)))
		sources = append(sources, Source{
			URL:     hit.Metadata.SourceURL,
			Snippet: SnippetText(hit.Metadata.Text),
		})
	}

	return sources, strings.Join(sections, "\n\n")
}

var citationRE = regexp.MustCompile(`\[(\d+)\]`)

// sanitizeCitations drops citation markers that point past the sources list;
// models occasionally invent indices beyond the supplied context.
func sanitizeCitations(answer string, sourceCount int) string {
	return citationRE.ReplaceAllStringFunc(answer, func(marker string) string {
		n, err := strconv.Atoi(citationRE.FindStringSubmatch(marker)[1])
		if err != nil || n < 1 || n > sourceCount {
			return ""
		}
		return marker
	})
}
