package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultModel   = "gpt-oss:20b"
	DefaultTimeout = 360 * time.Second

	// MaxThemes caps the themes kept from a model response
	MaxThemes = 8
	// maxPromptTexts caps how many responses are quoted in a prompt
	maxPromptTexts = 40
	maxTextChars   = 500
)

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// New creates a new Ollama client
func New(ollamaURL, model string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultModel
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	client := api.NewClient(baseURL, http.DefaultClient)

	return &Client{
		client:  client,
		model:   model,
		timeout: DefaultTimeout,
	}, nil
}

// Model returns the model name requests are sent to
func (c *Client) Model() string {
	return c.model
}

// SetTimeout overrides the per-request timeout
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// GenerateResponse generates a response from the LLM
func (c *Client) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	log.Printf("Ollama: Sending request to model %s (timeout: %v)", c.model, c.timeout)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: new(bool), // false
	}

	var response strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response.WriteString(resp.Response)
		return nil
	})

	if err != nil {
		log.Printf("Ollama: Generation failed: %v", err)
		return "", fmt.Errorf("generation failed: %w", err)
	}

	result := strings.TrimSpace(response.String())
	log.Printf("Ollama: Response received (%d chars)", len(result))
	return result, nil
}

// SummarizeFeedback writes a short narrative summary of a survey digest
// produced by the local analysis
func (c *Client) SummarizeFeedback(ctx context.Context, digest string) (string, error) {
	prompt := fmt.Sprintf(`You are a customer success analyst. Summarize the following survey analysis for an executive audience.

Requirements:
- Write EXACTLY 2 or 3 short sentences
- Lead with the most important risk or opportunity
- Use only facts present in the analysis
- Do NOT use numbering or bullet points
- Do NOT provide meta-commentary (e.g., "this analysis shows...")

Survey analysis:
%s

Summary:`, digest)

	summary, err := c.GenerateResponse(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.Trim(summary, "\"' \n"), nil
}

// Theme is a recurring theme identified in customer feedback
type Theme struct {
	Theme     string `json:"theme"`
	Sentiment string `json:"sentiment"`
	Evidence  string `json:"evidence"`
}

// ExtractThemes asks the model for the recurring themes across feedback
// texts. At most MaxThemes themes are returned.
func (c *Client) ExtractThemes(ctx context.Context, texts []string) ([]Theme, error) {
	var b strings.Builder
	n := 0
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len(t) > maxTextChars {
			t = t[:maxTextChars]
		}
		fmt.Fprintf(&b, "- %s\n", t)
		n++
		if n == maxPromptTexts {
			break
		}
	}
	if n == 0 {
		return []Theme{}, nil
	}

	prompt := fmt.Sprintf(`Identify the recurring themes in the following customer feedback.

Return ONLY a JSON array with at most %d objects, each with:
- "theme": a short name for the theme (2-4 words)
- "sentiment": one of "positive", "negative", "neutral" or "mixed"
- "evidence": a brief quote or paraphrase supporting the theme

Feedback:
%s
JSON:`, MaxThemes, b.String())

	response, err := c.GenerateResponse(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return parseThemes(response)
}

// parseThemes extracts a JSON array of themes from a model response that
// may wrap it in prose or code fences
func parseThemes(response string) ([]Theme, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var raw []Theme
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse themes: %w", err)
	}

	themes := make([]Theme, 0, len(raw))
	for _, t := range raw {
		t.Theme = strings.TrimSpace(t.Theme)
		if t.Theme == "" {
			continue
		}
		t.Sentiment = normalizeSentiment(t.Sentiment)
		t.Evidence = strings.TrimSpace(t.Evidence)
		themes = append(themes, t)
		if len(themes) == MaxThemes {
			break
		}
	}
	return themes, nil
}

func normalizeSentiment(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "positive", "negative", "neutral", "mixed":
		return s
	}
	return "neutral"
}
