package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const promptPrefix = "Summarize the following article in less than 1500 chars:\n"

// SummarizationError covers connection failures, HTTP error statuses and
// timeouts against the generation service. Partial text accumulated before
// the failure is discarded by the caller receiving this error.
type SummarizationError struct {
	Err error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization failed: %v", e.Err)
}

func (e *SummarizationError) Unwrap() error {
	return e.Err
}

// ProgressFunc receives fractional completion in [0.0, 1.0].
type ProgressFunc func(fraction float64)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateChunk is one newline-delimited JSON object of the streaming
// response. Either field may be absent on any given line.
type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Client drives the streaming generate endpoint of an Ollama-compatible
// service and assembles the final summary from response fragments.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// New builds a client. The overall timeout is generous since generation
// can legitimately run for a long time; zero means one hour.
func New(endpoint, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Client{
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Summarize sends the article text and consumes the incremental response
// stream. progress is invoked at 0.5 once the prompt is ready to send and
// at 1.0 once the summary is fully assembled; it may be nil.
func (c *Client) Summarize(ctx context.Context, articleText string, progress ProgressFunc) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: promptPrefix + articleText,
		Stream: true,
	})
	if err != nil {
		return "", &SummarizationError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	if progress != nil {
		progress(0.5)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &SummarizationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SummarizationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &SummarizationError{
			Err: fmt.Errorf("generate endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}

	summary, err := assembleStream(resp.Body)
	if err != nil {
		return "", &SummarizationError{Err: err}
	}

	if progress != nil {
		progress(1.0)
	}
	return summary, nil
}

// assembleStream concatenates response fragments in arrival order. Lines
// that fail to parse as JSON are skipped; done=true ends consumption, as
// does a clean EOF.
func assembleStream(body io.Reader) (string, error) {
	var summary strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		summary.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}

	return summary.String(), nil
}
