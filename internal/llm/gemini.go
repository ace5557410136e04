package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Gemini API endpoint prefix.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is used when the config names no model.
	DefaultModel = "gemini-2.5-flash"
)

const systemPrompt = `You are a schedule management assistant. Analyse the
user's natural-language input and decide on exactly one action.

Possible actions:
- CREATE_EVENT: create a new appointment
- UPDATE_EVENT: change an existing appointment
- DELETE_EVENT: remove an appointment
- LIST_EVENTS: show appointments ("window" may be "today", "upcoming", or empty)
- SEARCH_EVENTS: find appointments by a phrase
- STATS: summarise the schedule
- GENERAL_RESPONSE: anything else

Reply with ONLY this JSON object, no other text:
{
    "action": "<one of the actions above>",
    "event_data": {
        "title": "<title or empty>",
        "description": "<description or empty>",
        "start_time": "<RFC 3339 instant or empty>",
        "end_time": "<RFC 3339 instant or empty>",
        "location": "<location or empty>",
        "attendees": ["<names>"],
        "priority": "<Low|Medium|High|Urgent or empty>",
        "query": "<search or target phrase or empty>",
        "window": "<today|upcoming or empty>"
    },
    "response_text": "<message to show the user>",
    "missing_data": "<Title|StartTime|EndTime|All or empty>"
}

If information required for the action is missing, set "missing_data" to what
is missing and ask for it in "response_text". Resolve relative dates like
"tomorrow" against the current time given in the user message.`

// GeminiClient interprets utterances via the Gemini generateContent REST API.
type GeminiClient struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	hc          *http.Client
	log         *slog.Logger
}

// GeminiOption customises a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithBaseURL overrides the API endpoint, used for testing.
func WithBaseURL(u string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithModel selects the model name.
func WithModel(m string) GeminiOption {
	return func(c *GeminiClient) { c.model = m }
}

// WithGeneration sets temperature and the output token cap.
func WithGeneration(temperature float64, maxTokens int) GeminiOption {
	return func(c *GeminiClient) {
		c.temperature = temperature
		c.maxTokens = maxTokens
	}
}

// NewGeminiClient returns a client authenticating with apiKey.
func NewGeminiClient(apiKey string, logger *slog.Logger, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		apiKey:      apiKey,
		temperature: 0.7,
		maxTokens:   1000,
		hc:          &http.Client{Timeout: 60 * time.Second},
		log:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Config   geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Interpret sends the utterance to Gemini and parses the structured reply.
func (c *GeminiClient) Interpret(ctx context.Context, utterance string, now time.Time) (*OperationDraft, error) {
	user := fmt.Sprintf("User input: %s\n\nCurrent time: %s",
		utterance, now.Format(time.RFC3339))

	text, err := c.generate(ctx, systemPrompt+"\n\n"+user)
	if err != nil {
		return nil, err
	}

	draft, err := ParseDraft(text)
	if err != nil {
		c.log.Debug("unparseable interpreter reply", "reply", text)
		return nil, err
	}
	return draft, nil
}

// Ping sends a trivial generation request to validate the key and endpoint.
func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.generate(ctx, "Reply with the single word: ok"); err != nil {
		return fmt.Errorf("ping gemini: %w", err)
	}
	return nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		Config: geminiGenConfig{Temperature: c.temperature, MaxOutputTokens: c.maxTokens},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute gemini request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var br struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&br)
		if br.Error.Message != "" {
			return "", fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, br.Error.Message)
		}
		return "", fmt.Errorf("gemini returned unexpected status %d", resp.StatusCode)
	}

	var body geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("parse gemini response: %w", err)
	}
	if len(body.Candidates) == 0 || len(body.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return body.Candidates[0].Content.Parts[0].Text, nil
}
