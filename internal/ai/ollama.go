package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OllamaProvider talks to a locally hosted model over Ollama's chat API.
type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		Model:   model,
		Client:  &http.Client{},
	}
}

type ollamaChatReq struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Error   string    `json:"error,omitempty"`
}

func (p *OllamaProvider) Complete(ctx context.Context, history []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classifyTransport(ctx, "ollama chat", err)
	}

	msgs := make([]ollamaMsg, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, ollamaMsg{Role: m.Role, Content: m.Content})
	}

	b, err := json.Marshal(ollamaChatReq{Model: p.Model, Messages: msgs, Stream: false})
	if err != nil {
		return "", Errf(KindProvider, "ollama: encode request: %v", err)
	}

	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", Errf(KindProvider, "ollama: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, "ollama chat", err)
	}
	defer resp.Body.Close()

	// 404 is "model not found" on this API, a configuration problem rather
	// than a transient fault.
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", Errf(KindProvider, "ollama: model %q not found", p.Model)
	case resp.StatusCode >= 500:
		return "", Errf(KindUpstream, "ollama: status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", Errf(KindProvider, "ollama: status %d", resp.StatusCode)
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", Errf(KindProvider, "ollama: decode response: %v", err)
	}
	if decoded.Error != "" {
		return "", Errf(KindUpstream, "ollama: %s", decoded.Error)
	}
	return decoded.Message.Content, nil
}
