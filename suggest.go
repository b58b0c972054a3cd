package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

/* ─── Request / Response types ───────────────────────────────────────── */

// suggestRequest is the request body for POST /api/ledger/suggest.
type suggestRequest struct {
	Description string `json:"description"`
}

// suggestionResponse is the draft entry parsed by the model. Macro fields are
// per serving so the draft can be posted to /api/ledger/entries as-is after
// the user confirms it. Confidence is 1-5.
type suggestionResponse struct {
	Name            string  `json:"name"`
	Brand           *string `json:"brand"`
	GramsPerServing float64 `json:"grams_per_serving"`
	Servings        float64 `json:"servings"`
	Calories        float64 `json:"kcal"`
	ProteinG        float64 `json:"protein_g"`
	CarbsG          float64 `json:"carbs_g"`
	FatG            float64 `json:"fat_g"`
	Confidence      int     `json:"confidence"`
}

/* ─── OpenAI prompt constants ────────────────────────────────────────── */

const foodSystemPrompt = `You are a nutrition assistant. Parse the food description and return a JSON object with:
- "name" (string, cleaned up title case)
- "brand" (string or null, only if the description names a brand)
- "grams_per_serving" (number, weight of one serving in grams)
- "servings" (number of servings described, default 1)
- "kcal" (number, calories for ONE serving)
- "protein_g" (number, grams for ONE serving)
- "carbs_g" (number, grams for ONE serving)
- "fat_g" (number, grams for ONE serving)
- "confidence" (integer 1-5: 5=exact known nutritional data, 4=very close estimate, 3=reasonable estimate, 2=rough guess, 1=very uncertain)

Always provide your best estimate, even for unfamiliar or vague items. Use your knowledge of similar foods to approximate. Only return {"error": "unrecognized"} if the input is not food at all (e.g. random characters, non-food objects).
Return only valid JSON, no explanation.`

/* ─── OpenAI HTTP client ─────────────────────────────────────────────── */

const (
	suggestModel   = "gpt-4o-mini"
	suggestTimeout = 15 * time.Second
)

var errNoAPIKey = errors.New("OPENAI_API_KEY not set")

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// openAIClient talks to an OpenAI-compatible chat completions endpoint. One
// client (and its connection pool) is shared by all requests.
type openAIClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newOpenAIClient(baseURL, apiKey string) *openAIClient {
	return &openAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: suggestTimeout},
	}
}

// completeJSON sends messages in JSON mode and returns the first choice's content.
func (o *openAIClient) completeJSON(ctx context.Context, messages []openAIMessage) (string, error) {
	if o == nil || o.apiKey == "" {
		return "", errNoAPIKey
	}

	body, err := json.Marshal(openAIRequest{
		Model:          suggestModel,
		Messages:       messages,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}

	var out openAIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// parseSuggestion turns the model's JSON into a draft. ok is false when the
// model could not recognise the input as food.
func parseSuggestion(content string) (s suggestionResponse, ok bool, err error) {
	var draft struct {
		suggestionResponse
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return suggestionResponse{}, false, err
	}
	s = draft.suggestionResponse
	if draft.Error != "" || s.Name == "" || s.Calories <= 0 {
		return suggestionResponse{}, false, nil
	}
	if s.Servings <= 0 {
		s.Servings = 1
	}
	return s, true, nil
}

/* ─── Handler ────────────────────────────────────────────────────────── */

// suggestEntry handles POST /api/ledger/suggest.
// Accepts a food description and returns a per-serving draft entry parsed by
// the model. Nothing is logged to the ledger.
func (h *Handler) suggestEntry(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		apiError(c, http.StatusBadRequest, "description is required")
		return
	}

	content, err := h.openAI.completeJSON(c.Request.Context(), []openAIMessage{
		{Role: "system", Content: foodSystemPrompt},
		{Role: "user", Content: req.Description},
	})
	if err != nil {
		log.Printf("[suggestEntry] completion failed: %v", err)
		apiError(c, http.StatusBadGateway, "openai request failed")
		return
	}

	draft, ok, err := parseSuggestion(content)
	if err != nil {
		log.Printf("[suggestEntry] bad model output %q: %v", content, err)
		apiError(c, http.StatusBadGateway, "openai request failed")
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
		return
	}
	c.JSON(http.StatusOK, draft)
}
