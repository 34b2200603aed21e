package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	return New(url, "test-model", 5*time.Second)
}

func TestSummarizeAssemblesFragmentsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"The "}` + "\n"))
		w.Write([]byte(`{"response":"quick "}` + "\n"))
		w.Write([]byte(`{"response":"fox."}` + "\n"))
		w.Write([]byte(`{"done":true}` + "\n"))
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "article", nil)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "The quick fox." {
		t.Errorf("Summarize() = %q, want %q", summary, "The quick fox.")
	}
}

func TestSummarizeSkipsMalformedLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"first "}` + "\n"))
		w.Write([]byte("{not json at all\n"))
		w.Write([]byte(`{"response":"third","done":true}` + "\n"))
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "article", nil)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "first third" {
		t.Errorf("Summarize() = %q, want %q", summary, "first third")
	}
}

func TestSummarizeStopsAtDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"kept","done":true}` + "\n"))
		w.Write([]byte(`{"response":" dropped"}` + "\n"))
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "article", nil)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "kept" {
		t.Errorf("Summarize() = %q, want %q", summary, "kept")
	}
}

func TestSummarizeStreamEndsWithoutDone(t *testing.T) {
	// Connection-level EOF is a valid end of stream.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"partial "}` + "\n"))
		w.Write([]byte(`{"response":"stream"}` + "\n"))
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "article", nil)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "partial stream" {
		t.Errorf("Summarize() = %q, want %q", summary, "partial stream")
	}
}

func TestSummarizeSendsModelAndPrompt(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"response":"ok","done":true}` + "\n"))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).Summarize(context.Background(), "article body", nil); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if got.Model != "test-model" {
		t.Errorf("request model = %q, want %q", got.Model, "test-model")
	}
	if !got.Stream {
		t.Error("request should ask for a streaming response")
	}
	if !strings.HasSuffix(got.Prompt, "article body") {
		t.Errorf("prompt %q should end with the article text", got.Prompt)
	}
	if !strings.HasPrefix(got.Prompt, "Summarize") {
		t.Errorf("prompt %q should carry the summarization instruction", got.Prompt)
	}
}

func TestSummarizeHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Summarize(context.Background(), "article", nil)
	if err == nil {
		t.Fatal("Summarize() should fail on HTTP 500")
	}
	var sumErr *SummarizationError
	if !errors.As(err, &sumErr) {
		t.Errorf("Summarize() error type = %T, want *SummarizationError", err)
	}
}

func TestSummarizeConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestClient(server.URL).Summarize(context.Background(), "article", nil)
	if err == nil {
		t.Fatal("Summarize() should fail when the service is unreachable")
	}
	var sumErr *SummarizationError
	if !errors.As(err, &sumErr) {
		t.Errorf("Summarize() error type = %T, want *SummarizationError", err)
	}
}

func TestSummarizeProgressCheckpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"done","done":true}` + "\n"))
	}))
	defer server.Close()

	var reported []float64
	_, err := newTestClient(server.URL).Summarize(context.Background(), "article", func(fraction float64) {
		reported = append(reported, fraction)
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if len(reported) != 2 || reported[0] != 0.5 || reported[1] != 1.0 {
		t.Errorf("progress checkpoints = %v, want [0.5 1]", reported)
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] < reported[i-1] {
			t.Errorf("progress went backwards: %v", reported)
		}
	}
}

func TestSummarizeNoProgressAfterFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var reported []float64
	_, err := newTestClient(server.URL).Summarize(context.Background(), "article", func(fraction float64) {
		reported = append(reported, fraction)
	})
	if err == nil {
		t.Fatal("Summarize() should fail on HTTP 503")
	}
	for _, fraction := range reported {
		if fraction >= 1.0 {
			t.Errorf("completion progress %v reported for a failed run", fraction)
		}
	}
}
