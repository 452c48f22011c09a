package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// MockProvider posts the flattened history to a local stub endpoint.
// The stub decides whether to answer, fail, or hang, which is what makes
// retry, timeout and cancellation behavior observable in tests.
type MockProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewMockProvider(baseURL string) *MockProvider {
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return &MockProvider{
		BaseURL: baseURL,
		// per-attempt deadlines come from ctx, not the client
		Client: &http.Client{},
	}
}

type mockCompleteReq struct {
	Messages []Message `json:"messages"`
}

type mockCompleteResp struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

func (p *MockProvider) Complete(ctx context.Context, history []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classifyTransport(ctx, "mock complete", err)
	}

	b, err := json.Marshal(mockCompleteReq{Messages: history})
	if err != nil {
		return "", Errf(KindProvider, "mock: encode request: %v", err)
	}

	url := strings.TrimRight(p.BaseURL, "/") + "/complete"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", Errf(KindProvider, "mock: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, "mock complete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", Errf(KindUpstream, "mock: status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", Errf(KindProvider, "mock: status %d", resp.StatusCode)
	}

	var decoded mockCompleteResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", Errf(KindProvider, "mock: decode response: %v", err)
	}
	if decoded.Error != "" {
		return "", Errf(KindUpstream, "mock: %s", decoded.Error)
	}
	return decoded.Reply, nil
}
