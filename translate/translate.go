// Package translate implements AI-powered translation of locale trees
// using HTTP API-based providers: Google AI (Gemini), Groq, Custom OpenAI,
// and Ollama.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loctree/loctree/engine"
	"github.com/loctree/loctree/tree"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderGoogle       = "google"
	ProviderGroq         = "groq"
	ProviderCustomOpenAI = "custom-openai"
	ProviderOllama       = "ollama"
)

// ErrRateLimited is returned when the provider keeps responding 429 after
// all retries. Callers can branch on it to stop launching further chunks.
var ErrRateLimited = errors.New("provider rate limit exceeded")

// ---------------------------------------------------------------------------
// Default system prompt
// ---------------------------------------------------------------------------

const DefaultSystemPrompt = `You are a professional translator specializing in software and product localization. You are translating UI strings for a software application.

CONTEXT AWARENESS:
- The audience is software users
- Tone: professional yet approachable, clear and concise
- Use IT/software terminology that is standard in {{targetLang}} tech community
- Adapt to the application's specific domain based on the source text context

IMPORTANT TRANSLATION PRINCIPLES:
- Translate for NATURALNESS and FLUENCY in the target language, not word-for-word
- Use idiomatic expressions natural to {{targetLang}}, not literal translations
- Adapt sentence structure to match {{targetLang}} conventions
- Consider cultural context and target audience expectations
- Maintain the original tone and intent, but express it naturally in {{targetLang}}

TECHNICAL REQUIREMENTS:
- The input is a JSON object whose leaf values are the strings to translate.
- Return ONLY a JSON object with EXACTLY the same keys and nesting; replace every leaf string with its translation.
- Do NOT add, remove, rename, or re-nest any keys.
- Preserve all format specifiers and placeholders exactly as-is (%s, %d, {name}, {{count}}, etc.).
- Preserve leading/trailing whitespace, newlines, and punctuation patterns.
- Keep brand names and proper nouns unchanged.
- Do NOT translate technical terms that are standard in English (unless they have established translations).
- Return ONLY the JSON object, no explanations or markdown code blocks.`

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the configuration for an AI translation service.
type Provider struct {
	// ID is the provider identifier (google, groq, etc.).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderGoogle: {
			ID:      ProviderGoogle,
			Name:    "Google AI (Gemini)",
			BaseURL: "https://generativelanguage.googleapis.com",
			Timeout: 120 * time.Second,
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Timeout: 60 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 60 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			Timeout: 120 * time.Second,
		},
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client translates locale chunks through an HTTP provider. It is safe for
// concurrent use; parallel workers share a single rate-limit gate so one
// 429 pauses all of them.
type Client struct {
	Provider Provider
	// SystemPrompt overrides the default system prompt. The placeholder
	// {{targetLang}} is substituted with the language name before sending.
	SystemPrompt string
	// MaxRetries is the maximum number of retries on rate limit or
	// transient failure. Default: 3.
	MaxRetries int
	// Verbose enables request-level logging via Logf.
	Verbose bool
	// Logf emits log messages; nil means silent.
	Logf func(format string, args ...any)

	rl rateLimitState
}

func (c *Client) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Client) effectiveMaxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

func (c *Client) resolvedPrompt(targetLang string) string {
	prompt := c.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return strings.ReplaceAll(prompt, "{{targetLang}}", targetLang)
}

// Translate sends one chunk to the provider and parses the response back
// into a tree. Junk the model added (arrays, numbers, keys outside the
// object) is dropped here; the caller's normalizer filters the rest.
func (c *Client) Translate(ctx context.Context, chunk *tree.Tree, targetLang string) (*engine.Result, error) {
	payload, err := chunk.MarshalIndent()
	if err != nil {
		return nil, fmt.Errorf("encoding chunk: %w", err)
	}

	systemPrompt := c.resolvedPrompt(targetLang)
	userPrompt := fmt.Sprintf("Translate the leaf values of this JSON object to %s:\n\n%s", targetLang, payload)

	text, cost, err := c.callProvider(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	objText := extractJSONObject(text)
	if objText == "" {
		return nil, fmt.Errorf("no JSON object in response: %s", truncate(text, 200))
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(objText), &raw); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	return &engine.Result{Translated: tree.FromAny(raw), Cost: cost}, nil
}

// ---------------------------------------------------------------------------
// Rate limit coordination between parallel workers
// ---------------------------------------------------------------------------

type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic: 1 = paused
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseEnd = time.Now().Add(duration)
	atomic.StoreInt32(&r.paused, 1)
}

func (r *rateLimitState) unpause() {
	atomic.StoreInt32(&r.paused, 0)
}

// waitIfPaused blocks until the rate limit pause is over.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		r.mu.Lock()
		remaining := time.Until(r.pauseEnd)
		r.mu.Unlock()
		if remaining <= 0 {
			r.unpause()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(minDuration(remaining, 100*time.Millisecond)):
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// Support both --proxy flag and HTTP_PROXY/HTTPS_PROXY env vars
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// Request builders
// ---------------------------------------------------------------------------

type apiFormat int

const (
	formatOpenAIChat   apiFormat = iota // OpenAI chat/completions
	formatGeminiNative                  // Google Gemini generateContent
)

func buildOpenAIChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		Stream:      false,
	}
	return json.Marshal(req)
}

func buildGeminiRequest(systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature float64 `json:"temperature"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		GenerationConfig: genConfig{Temperature: temperature},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// ---------------------------------------------------------------------------
// Response parsers (multi-format)
// ---------------------------------------------------------------------------

// extractResponseText tries all known response formats and returns the text.
func extractResponseText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	// Check for API error
	if errObj, ok := raw["error"]; ok {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// 1. OpenAI chat format: choices[0].message.content
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok {
					return content, nil
				}
			}
		}
	}

	// 2. Gemini format: candidates[0].content.parts[0].text
	if candidates, ok := raw["candidates"].([]any); ok && len(candidates) > 0 {
		if candidate, ok := candidates[0].(map[string]any); ok {
			if content, ok := candidate["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]any); ok {
						if text, ok := part["text"].(string); ok {
							return text, nil
						}
					}
				}
			}
		}
	}

	// 3. Simple response field (Ollama generate and similar)
	if resp, ok := raw["response"].(string); ok {
		return resp, nil
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

// extractUsage pulls token counts out of a response body. Providers that
// report nothing contribute a zero cost.
func extractUsage(body []byte) engine.Cost {
	var raw struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			InputTokens      int `json:"input_tokens"`
			OutputTokens     int `json:"output_tokens"`
		} `json:"usage"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return engine.Cost{}
	}
	switch {
	case raw.Usage.PromptTokens > 0 || raw.Usage.CompletionTokens > 0:
		return engine.Cost{InputUnits: raw.Usage.PromptTokens, OutputUnits: raw.Usage.CompletionTokens}
	case raw.Usage.InputTokens > 0 || raw.Usage.OutputTokens > 0:
		return engine.Cost{InputUnits: raw.Usage.InputTokens, OutputUnits: raw.Usage.OutputTokens}
	default:
		return engine.Cost{
			InputUnits:  raw.UsageMetadata.PromptTokenCount,
			OutputUnits: raw.UsageMetadata.CandidatesTokenCount,
		}
	}
}

// ---------------------------------------------------------------------------
// Rate limit: parse 429 response for retry delay
// ---------------------------------------------------------------------------

// parseRetryDelay extracts the retry delay from a 429 response body.
// Looks for Google's RetryInfo detail with retryDelay field.
// Returns the delay to wait, defaulting to 60s + 5s buffer.
func parseRetryDelay(body []byte) time.Duration {
	const defaultDelay = 65 * time.Second // 60s + 5s buffer

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return defaultDelay
	}

	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			// Parse duration like "30s", "45.123s"
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			}
		}
	}

	return defaultDelay
}

// ---------------------------------------------------------------------------
// Provider call with retries
// ---------------------------------------------------------------------------

func (c *Client) callProvider(ctx context.Context, systemPrompt, userPrompt string) (string, engine.Cost, error) {
	format := formatOpenAIChat
	if c.Provider.ID == ProviderGoogle {
		format = formatGeminiNative
	}

	endpoint, headers, body, err := buildHTTPRequest(c.Provider, systemPrompt, userPrompt, format)
	if err != nil {
		return "", engine.Cost{}, fmt.Errorf("building request: %w", err)
	}

	client := makeHTTPClient(c.Provider.Proxy, c.Provider.Timeout)
	maxRetries := c.effectiveMaxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Wait if globally paused (rate limit hit by another worker)
		if err := c.rl.waitIfPaused(ctx); err != nil {
			return "", engine.Cost{}, err
		}

		select {
		case <-ctx.Done():
			return "", engine.Cost{}, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
		if err != nil {
			return "", engine.Cost{}, fmt.Errorf("creating request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		if c.Verbose {
			c.logf("%s attempt %d: POST %s", c.Provider.Name, attempt+1, endpoint)
		}

		resp, err := client.Do(req)
		if err != nil {
			if attempt < maxRetries {
				wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				select {
				case <-ctx.Done():
					return "", engine.Cost{}, ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return "", engine.Cost{}, fmt.Errorf("API request failed: %w", err)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			retryDelay := parseRetryDelay(respBody)
			c.logf("rate limited, waiting %v before retry (attempt %d/%d)", retryDelay, attempt+1, maxRetries)
			// Globally pause all workers
			c.rl.pause(retryDelay)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return "", engine.Cost{}, ctx.Err()
				case <-time.After(retryDelay):
				}
				c.rl.unpause()
				continue
			}
			return "", engine.Cost{}, fmt.Errorf("%w after %d retries: %s", ErrRateLimited, maxRetries, truncate(string(respBody), 200))
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < maxRetries && resp.StatusCode >= 500 {
				wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				select {
				case <-ctx.Done():
					return "", engine.Cost{}, ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return "", engine.Cost{}, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
		}

		text, err := extractResponseText(respBody)
		if err != nil {
			return "", engine.Cost{}, err
		}
		return text, extractUsage(respBody), nil
	}

	return "", engine.Cost{}, fmt.Errorf("exhausted all %d retries", maxRetries)
}

// buildHTTPRequest constructs the endpoint, headers, and body for a provider.
func buildHTTPRequest(prov Provider, systemPrompt, userPrompt string, format apiFormat) (string, map[string]string, []byte, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	var endpoint string
	var body []byte
	var err error

	switch format {
	case formatGeminiNative:
		// Google AI: POST /v1beta/models/{model}:generateContent
		endpoint = fmt.Sprintf("%s/v1beta/models/%s:generateContent",
			strings.TrimRight(prov.BaseURL, "/"), prov.Model)
		if prov.APIKey != "" {
			headers["x-goog-api-key"] = prov.APIKey
		}
		body, err = buildGeminiRequest(systemPrompt, userPrompt, 0.3)

	default: // formatOpenAIChat
		baseURL := strings.TrimRight(prov.BaseURL, "/")
		if !strings.HasSuffix(baseURL, "/chat/completions") {
			endpoint = baseURL + "/chat/completions"
		} else {
			endpoint = baseURL
		}
		if prov.APIKey != "" {
			headers["Authorization"] = "Bearer " + prov.APIKey
		}
		body, err = buildOpenAIChatRequest(prov.Model, systemPrompt, userPrompt, 0.3)
	}

	if err != nil {
		return "", nil, nil, err
	}
	return endpoint, headers, body, nil
}

// ---------------------------------------------------------------------------
// Response text cleanup
// ---------------------------------------------------------------------------

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSONObject pulls the JSON object out of a model response, which
// may be wrapped in markdown code fences or surrounded by commentary.
// Returns "" when no object is present.
func extractJSONObject(text string) string {
	if m := markdownCodeBlock.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
