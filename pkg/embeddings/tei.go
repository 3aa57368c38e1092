package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response body is quoted in errors.
const maxErrorBody = 4096

// teiClient talks to a Text Embeddings Inference server.
type teiClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// teiInfo is the subset of GET /info used to validate the server.
type teiInfo struct {
	ModelID            string                     `json:"model_id"`
	ModelType          map[string]json.RawMessage `json:"model_type"`
	MaxInputLength     int                        `json:"max_input_length"`
	MaxClientBatchSize int                        `json:"max_client_batch_size"`
	Version            string                     `json:"version"`
}

// teiError is the TEI error body.
type teiError struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

func newTEIClient(opts RemoteOptions) (*teiClient, error) {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint required", ErrInvalidConfig)
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid endpoint %q", ErrInvalidConfig, opts.Endpoint)
	}
	if opts.RateLimit < 0 {
		return nil, fmt.Errorf("%w: rate limit must be >= 0", ErrInvalidConfig)
	}

	c := &teiClient{
		baseURL: endpoint,
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: opts.Timeout},
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// info fetches server metadata. Construction uses it to check readiness and the served model.
func (c *teiClient) info(ctx context.Context) (*teiInfo, error) {
	var out teiInfo
	if err := c.do(ctx, http.MethodGet, "/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *teiClient) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *teiClient) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var te teiError
		if json.Unmarshal(raw, &te) == nil && te.Error != "" {
			return fmt.Errorf("%w: status %d: %s (%s)", ErrEmbeddingFailed, resp.StatusCode, te.Error, te.ErrorType)
		}
		return fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// servesModel reports whether serverID, the model_id from /info, names one of
// ids. Servers started from a local directory report its path, so a match on
// the trailing path segments also counts.
func servesModel(serverID string, ids ...string) bool {
	got := strings.ToLower(strings.TrimRight(serverID, "/"))
	if got == "" {
		return false
	}
	for _, id := range ids {
		id = strings.ToLower(id)
		if got == id || strings.HasSuffix(got, "/"+id) {
			return true
		}
	}
	return false
}
