package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/siterag/siterag/internal/llm"
	"github.com/siterag/siterag/internal/vector"
)

type fakeLLM struct {
	embedErr    error
	completeErr error
	reply       string
	embeds      int
	completions int
	lastRequest llm.CompletionRequest
}

func (f *fakeLLM) Model() string { return "test-model" }

func (f *fakeLLM) Embed(_ context.Context, _ string) ([]float32, error) {
	f.embeds++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0}, nil
}

func (f *fakeLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.completions++
	f.lastRequest = req
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &llm.CompletionResponse{Content: f.reply}, nil
}

type fakeStore struct {
	hits     []vector.Hit
	queryErr error
	queries  int
}

func (f *fakeStore) Upsert(context.Context, []vector.Entry) error { return nil }

func (f *fakeStore) Query(_ context.Context, _ []float32, topK int) ([]vector.Hit, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if topK > len(f.hits) {
		topK = len(f.hits)
	}
	return f.hits[:topK], nil
}

func (f *fakeStore) Count(context.Context) (int64, error) { return int64(len(f.hits)), nil }

func (f *fakeStore) Close() error { return nil }

type fakeAnswerCache struct {
	data map[string][]byte
}

func (f *fakeAnswerCache) GetAnswer(_ context.Context, key string, out interface{}) (bool, error) {
	b, ok := f.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (f *fakeAnswerCache) SetAnswer(_ context.Context, key string, v interface{}, _ time.Duration) error {
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.data[key] = b
	return nil
}

func geoHit() vector.Hit {
	return vector.Hit{
		ChunkID: "c1",
		Score:   0.95,
		Metadata: vector.Metadata{
			SourceURL: "https://example.com/geo",
			Text:      "The capital of France is Paris.",
		},
	}
}

func TestAskAnswersFromSeededStore(t *testing.T) {
	store := &fakeStore{hits: []vector.Hit{geoHit()}}
	model := &fakeLLM{reply: "The capital of France is Paris [1]."}
	engine := NewEngine(model, store, nil, 0)

	answer, err := engine.Ask(context.Background(), "What is the capital of France?", 1)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if !strings.Contains(answer.Answer, "Paris") {
		t.Errorf("answer = %q, want Paris mentioned", answer.Answer)
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("sources = %+v, want exactly one", answer.Sources)
	}
	if answer.Sources[0].URL != "https://example.com/geo" {
		t.Errorf("source url = %q", answer.Sources[0].URL)
	}
	if answer.Sources[0].Snippet != "The capital of France is Paris." {
		t.Errorf("source snippet = %q", answer.Sources[0].Snippet)
	}

	if !strings.Contains(model.lastRequest.UserPrompt, "[1] URL: https://example.com/geo") {
		t.Errorf("prompt is missing the numbered context section:\n%s", model.lastRequest.UserPrompt)
	}
	if !strings.Contains(model.lastRequest.UserPrompt, "What is the capital of France?") {
		t.Error("prompt is missing the question")
	}
	if !strings.Contains(model.lastRequest.SystemPrompt, "strictly using the provided CONTEXT") {
		t.Error("system prompt is missing the grounding instruction")
	}
}

func TestAskEmptyStoreRefusesWithoutGenerating(t *testing.T) {
	store := &fakeStore{}
	model := &fakeLLM{reply: "should never be used"}
	engine := NewEngine(model, store, nil, 0)

	answer, err := engine.Ask(context.Background(), "anything?", 5)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if answer.Answer != RefusalAnswer {
		t.Errorf("answer = %q, want refusal", answer.Answer)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %+v, want empty", answer.Sources)
	}
	if answer.Timings.GenerationMS != 0 {
		t.Errorf("generation_ms = %d, want 0", answer.Timings.GenerationMS)
	}
	if model.completions != 0 {
		t.Errorf("generation invoked %d times on empty retrieval", model.completions)
	}
}

func TestAskEmbedFailure(t *testing.T) {
	store := &fakeStore{hits: []vector.Hit{geoHit()}}
	model := &fakeLLM{embedErr: fmt.Errorf("connection refused")}
	engine := NewEngine(model, store, nil, 0)

	_, err := engine.Ask(context.Background(), "question?", 1)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "embed" {
		t.Fatalf("err = %v, want embed StageError", err)
	}
	if store.queries != 0 {
		t.Errorf("store queried %d times after embed failure", store.queries)
	}
}

func TestAskGenerationFailureIsNotRefusal(t *testing.T) {
	store := &fakeStore{hits: []vector.Hit{geoHit()}}
	model := &fakeLLM{completeErr: fmt.Errorf("model crashed")}
	engine := NewEngine(model, store, nil, 0)

	answer, err := engine.Ask(context.Background(), "question?", 1)
	if answer != nil {
		t.Errorf("answer = %+v, want nil on generation failure", answer)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "generate" {
		t.Fatalf("err = %v, want generate StageError", err)
	}
}

func TestAskStripsOutOfRangeCitations(t *testing.T) {
	store := &fakeStore{hits: []vector.Hit{
		geoHit(),
		{
			ChunkID:  "c2",
			Metadata: vector.Metadata{SourceURL: "https://example.com/more", Text: "More facts."},
		},
	}}
	model := &fakeLLM{reply: "Fact one [1], invented [7], fact two [2]."}
	engine := NewEngine(model, store, nil, 0)

	answer, err := engine.Ask(context.Background(), "question?", 2)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if strings.Contains(answer.Answer, "[7]") {
		t.Errorf("answer kept an out-of-range citation: %q", answer.Answer)
	}
	if !strings.Contains(answer.Answer, "[1]") || !strings.Contains(answer.Answer, "[2]") {
		t.Errorf("answer lost valid citations: %q", answer.Answer)
	}
}

func TestAskServesCachedAnswer(t *testing.T) {
	store := &fakeStore{hits: []vector.Hit{geoHit()}}
	model := &fakeLLM{reply: "Paris [1]."}
	cache := &fakeAnswerCache{}
	engine := NewEngine(model, store, cache, time.Hour)

	first, err := engine.Ask(context.Background(), "capital?", 1)
	if err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	if first.Cached {
		t.Error("first answer marked cached")
	}

	second, err := engine.Ask(context.Background(), "capital?", 1)
	if err != nil {
		t.Fatalf("second Ask: %v", err)
	}

	if model.completions != 1 {
		t.Errorf("generation invoked %d times, want 1", model.completions)
	}
	if !second.Cached {
		t.Error("second answer not marked cached")
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer %q differs from original %q", second.Answer, first.Answer)
	}
}

func TestAskRejectsNonPositiveTopK(t *testing.T) {
	engine := NewEngine(&fakeLLM{}, &fakeStore{}, nil, 0)

	if _, err := engine.Ask(context.Background(), "question?", 0); err == nil {
		t.Error("top_k 0 should be rejected")
	}
}
