package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// setupSuggestTest creates a Gin engine with a mock OpenAI server and returns
// the router and a function to set the mock response. No store is needed.
func setupSuggestTest() (*gin.Engine, *httptest.Server, func(int, interface{})) {
	return setupSuggestTestWithKey("test-key")
}

func setupSuggestTestWithKey(apiKey string) (*gin.Engine, *httptest.Server, func(int, interface{})) {
	var mockStatus int
	var mockBody interface{}

	mockOpenAI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(mockStatus)
		json.NewEncoder(w).Encode(mockBody)
	}))

	gin.SetMode(gin.TestMode)
	h := Handler{openAI: newOpenAIClient(mockOpenAI.URL, apiKey)}
	router := gin.New()
	// Skip auth middleware for tests, set a dummy user_id
	router.POST("/api/ledger/suggest", func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Next()
	}, h.suggestEntry)

	setMock := func(status int, body interface{}) {
		mockStatus = status
		mockBody = body
	}

	return router, mockOpenAI, setMock
}

// doSuggestRequest sends a POST to the suggest endpoint with the given body.
func doSuggestRequest(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/ledger/suggest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// openAIChatResponse wraps a content string in the OpenAI chat completions
// response shape (choices[0].message.content).
func openAIChatResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{
				"message": map[string]interface{}{
					"content": content,
				},
			},
		},
	}
}

func TestSuggest_FoodSuccess(t *testing.T) {
	router, mockServer, setMock := setupSuggestTest()
	defer mockServer.Close()

	suggestion := `{"name":"Scrambled Eggs","brand":null,"grams_per_serving":50,"servings":2,"kcal":90,"protein_g":7,"carbs_g":1,"fat_g":6,"confidence":4}`
	setMock(http.StatusOK, openAIChatResponse(suggestion))

	w := doSuggestRequest(router, `{"description":"2 eggs scrambled"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp suggestionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Name != "Scrambled Eggs" {
		t.Errorf("expected name 'Scrambled Eggs', got '%s'", resp.Name)
	}
	if resp.Calories != 90 || resp.Servings != 2 {
		t.Errorf("expected 90 kcal x 2 servings, got %.0f x %.0f", resp.Calories, resp.Servings)
	}
}

// TestSuggest_DefaultsServings verifies that a draft without servings is
// returned as a single serving.
func TestSuggest_DefaultsServings(t *testing.T) {
	router, mockServer, setMock := setupSuggestTest()
	defer mockServer.Close()

	setMock(http.StatusOK, openAIChatResponse(`{"name":"Banana","grams_per_serving":118,"kcal":105,"protein_g":1.3,"carbs_g":27,"fat_g":0.4,"confidence":5}`))

	w := doSuggestRequest(router, `{"description":"banana"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp suggestionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Servings != 1 {
		t.Errorf("expected servings defaulted to 1, got %v", resp.Servings)
	}
}

// TestSuggest_SendsSystemPrompt verifies the request sent upstream carries the
// food prompt and the user's description.
func TestSuggest_SendsSystemPrompt(t *testing.T) {
	var got openAIRequest
	var gotAuth, gotPath string
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		json.NewEncoder(w).Encode(openAIChatResponse(`{"name":"Apple","kcal":95,"confidence":5}`))
	}))
	defer mock.Close()

	gin.SetMode(gin.TestMode)
	h := Handler{openAI: newOpenAIClient(mock.URL+"/", "test-key")}
	router := gin.New()
	router.POST("/api/ledger/suggest", h.suggestEntry)

	w := doSuggestRequest(router, `{"description":"an apple"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != foodSystemPrompt {
		t.Error("expected the food system prompt as the first message")
	}
	if got.Messages[1].Content != "an apple" {
		t.Errorf("expected user message 'an apple', got %q", got.Messages[1].Content)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected configured key in Authorization, got %q", gotAuth)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("expected /v1/chat/completions, got %q", gotPath)
	}
	if got.ResponseFormat["type"] != "json_object" {
		t.Errorf("expected JSON response format, got %v", got.ResponseFormat)
	}
}

func TestSuggest_Unrecognized(t *testing.T) {
	router, mockServer, setMock := setupSuggestTest()
	defer mockServer.Close()

	setMock(http.StatusOK, openAIChatResponse(`{"error":"unrecognized"}`))

	w := doSuggestRequest(router, `{"description":"asdfghjkl"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "unrecognized" {
		t.Errorf("expected error 'unrecognized', got '%s'", resp["error"])
	}
}

func TestSuggest_OpenAIError500(t *testing.T) {
	router, mockServer, setMock := setupSuggestTest()
	defer mockServer.Close()

	setMock(http.StatusInternalServerError, map[string]string{"error": "server error"})

	w := doSuggestRequest(router, `{"description":"banana"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "openai request failed" {
		t.Errorf("expected error 'openai request failed', got '%s'", resp["error"])
	}
}

// TestSuggest_MissingAPIKey verifies an unconfigured key fails without
// calling upstream.
func TestSuggest_MissingAPIKey(t *testing.T) {
	router, mockServer, setMock := setupSuggestTestWithKey("")
	defer mockServer.Close()
	setMock(http.StatusOK, openAIChatResponse(`{"name":"Banana","kcal":105}`))

	w := doSuggestRequest(router, `{"description":"banana"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSuggest_EmptyDescription(t *testing.T) {
	router, mockServer, _ := setupSuggestTest()
	defer mockServer.Close()

	w := doSuggestRequest(router, `{"description":"   "}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSuggest_MalformedJSON(t *testing.T) {
	router, mockServer, setMock := setupSuggestTest()
	defer mockServer.Close()

	// OpenAI returns something that isn't valid JSON
	setMock(http.StatusOK, openAIChatResponse(`not valid json at all`))

	w := doSuggestRequest(router, `{"description":"banana"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
}

/* ─── Parsing ────────────────────────────────────────────────────────── */

func TestParseSuggestion(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantOK  bool
		wantErr bool
	}{
		{"complete draft", `{"name":"Toast","kcal":80,"servings":2}`, true, false},
		{"model says unrecognized", `{"error":"unrecognized"}`, false, false},
		{"missing name", `{"kcal":80}`, false, false},
		{"zero calories", `{"name":"Water","kcal":0}`, false, false},
		{"not json", `toast`, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok, err := parseSuggestion(tc.content)
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error=%v, got %v", tc.wantErr, err)
			}
			if ok != tc.wantOK {
				t.Errorf("expected ok=%v, got %v", tc.wantOK, ok)
			}
		})
	}
}

// TestNewHandler_WiresOpenAIFromConfig verifies the suggestion client takes
// its key and base URL from config rather than the environment.
func TestNewHandler_WiresOpenAIFromConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	h := newHandler(nil, nil, nil, config{OpenAIBaseURL: "http://example.test/", OpenAIAPIKey: "from-config"})
	if h.openAI.apiKey != "from-config" {
		t.Errorf("expected key from config, got %q", h.openAI.apiKey)
	}
	if h.openAI.baseURL != "http://example.test" {
		t.Errorf("expected trailing slash trimmed, got %q", h.openAI.baseURL)
	}
	if h.openAI.http == nil || h.openAI.http.Timeout != suggestTimeout {
		t.Error("expected a shared http client with the suggest timeout")
	}
}
