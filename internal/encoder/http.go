package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const defaultTimeout = 60 * time.Second

// Compile-time interface assertion.
var _ Service = (*Client)(nil)

// Client talks to a speaker-encoder inference server over HTTP. The server
// exposes POST /load ({"checkpoint": ...}) and POST /embed
// ({"samples": [...], "sample_rate": N} -> {"embedding": [...]}).
type Client struct {
	baseURL    string
	sampleRate int
	httpc      *http.Client

	mu     sync.Mutex
	loaded bool
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithTimeout overrides the default 60s request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpc.Timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client, e.g. for tests.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

// NewClient builds a Client for the encoder server at baseURL. sampleRate is
// reported with every embed request so the server can reject mismatched
// input.
func NewClient(baseURL string, sampleRate int, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		sampleRate: sampleRate,
		httpc:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsLoaded reports whether a Load call has succeeded.
func (c *Client) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Load asks the server to initialise the model from checkpoint. Subsequent
// calls on a loaded client return immediately.
func (c *Client) Load(ctx context.Context, checkpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"checkpoint": checkpoint})
	if err != nil {
		return fmt.Errorf("encoder: marshal load request: %w", err)
	}
	if err := c.post(ctx, "/load", payload, nil); err != nil {
		return err
	}
	c.loaded = true
	return nil
}

// PreprocessWav applies the encoder's input transform.
func (c *Client) PreprocessWav(wav []float64) []float64 {
	return PreprocessWav(wav)
}

// EmbedUtterance sends the waveform to the server and returns the embedding.
func (c *Client) EmbedUtterance(ctx context.Context, wav []float64) ([]float64, error) {
	if !c.IsLoaded() {
		return nil, ErrNotInitialized
	}

	payload, err := json.Marshal(struct {
		Samples    []float64 `json:"samples"`
		SampleRate int       `json:"sample_rate"`
	}{wav, c.sampleRate})
	if err != nil {
		return nil, fmt.Errorf("encoder: marshal embed request: %w", err)
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := c.post(ctx, "/embed", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("encoder: server returned empty embedding")
	}
	return out.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("encoder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("encoder: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("encoder: %s: %s: %s", path, resp.Status, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("encoder: decode %s response: %w", path, err)
	}
	return nil
}
