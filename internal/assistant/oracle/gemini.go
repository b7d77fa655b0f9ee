package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crm-assistant/internal/common/logger"
)

// GeminiConfig holds connection settings for the Gemini API.
type GeminiConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// GeminiClient implements Client against the Gemini generateContent
// endpoint with function declarations.
type GeminiClient struct {
	config GeminiConfig
	client *http.Client
	logger logger.Logger
}

func NewGeminiClient(cfg GeminiConfig, log logger.Logger) *GeminiClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GeminiClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.WithFields(map[string]interface{}{"component": "oracle"}),
	}
}

// --- wire types (subset of the Gemini REST surface we use) ---

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Tools             []geminiTool           `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Interpret sends one classification request. Transport failures and
// timeouts are retried with exponential backoff up to MaxRetries, then
// surfaced as ErrUnavailable; nothing above this client retries.
func (c *GeminiClient) Interpret(ctx context.Context, req *Request) (*Reply, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("%w: api key not configured", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal oracle request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.Model, c.config.APIKey)

	start := time.Now()

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, fmt.Errorf("build oracle request: %w", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, lastErr = c.client.Do(httpReq)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			// Server-side errors are worth a retry; client errors are not.
			retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
			payload, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(payload), 200))
			resp = nil
			if !retryable {
				break
			}
		}
	}

	if lastErr != nil || resp == nil {
		c.logger.Error("oracle request failed", map[string]interface{}{
			"model":    c.config.Model,
			"duration": time.Since(start).String(),
			"error":    fmt.Sprint(lastErr),
		})
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: api error: %s", ErrUnavailable, parsed.Error.Message)
	}

	reply := c.extractReply(&parsed)

	c.logger.Info("oracle replied", map[string]interface{}{
		"model":      c.config.Model,
		"duration":   time.Since(start).String(),
		"structured": reply.Call != nil,
	})

	return reply, nil
}

// buildRequest assembles system instruction, function catalogue,
// few-shot primer turns and the user command into one request.
func (c *GeminiClient) buildRequest(req *Request) *geminiRequest {
	decls := make([]geminiFunctionDeclaration, len(req.Declarations))
	for i, d := range req.Declarations {
		decls[i] = geminiFunctionDeclaration{
			Name:        string(d.Name),
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}

	// Primer: each example is a user turn answered by a model turn
	// carrying the expected function call.
	var contents []geminiContent
	for _, ex := range req.Examples {
		contents = append(contents,
			geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: ex.Command}},
			},
			geminiContent{
				Role: "model",
				Parts: []geminiPart{{FunctionCall: &geminiFunctionCall{
					Name: string(ex.Call),
					Args: ex.Args,
				}}},
			},
		)
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: req.Command}},
	})

	out := &geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 1024,
		},
	}
	if req.SystemInstruction != "" {
		out.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemInstruction}},
		}
	}
	if len(decls) > 0 {
		out.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return out
}

// extractReply pulls the first function call and any text out of the
// first candidate. A call wins over text when both are present.
func (c *GeminiClient) extractReply(resp *geminiResponse) *Reply {
	reply := &Reply{}
	if len(resp.Candidates) == 0 {
		return reply
	}

	var textBuilder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			textBuilder.WriteString(part.Text)
		}
		if part.FunctionCall != nil && reply.Call == nil {
			reply.Call = &FunctionCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}
		}
	}
	reply.Text = strings.TrimSpace(textBuilder.String())
	return reply
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
