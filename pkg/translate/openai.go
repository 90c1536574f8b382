package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/kashisync/kashisync/internal/utils"
	"github.com/kashisync/kashisync/pkg/callerr"
	"github.com/kashisync/kashisync/pkg/whttp"
	"github.com/pemistahl/lingua-go"
	"github.com/tidwall/gjson"
)

type openAITranslator struct {
	apiKey   string
	model    string
	endpoint string
	client   *retryablehttp.Client
	detector lingua.LanguageDetector
}

func newOpenAI(cfg Config) (*openAITranslator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("translation requires an API key (set translator.api_key in config or OPENAI_API_KEY)")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	t := &openAITranslator{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   whttp.NewClient(whttp.ClientOptions{Timeout: timeout, RetryMax: 1, Backoff: 2 * time.Second}),
	}
	if cfg.VerifyLanguage {
		t.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.English, lingua.Japanese).
			Build()
	}
	return t, nil
}

// Translate asks the chat completions API for English copy. Every failure, including
// transport errors and unusable output, is wrapped in ErrTranslation.
func (t *openAITranslator) Translate(ctx context.Context, title, description string) (Result, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Result{}, fail(errors.New("empty title"))
	}

	payload, err := json.Marshal(map[string]string{
		"title":       title,
		"description": description,
	})
	if err != nil {
		return Result{}, fail(err)
	}

	reqBody, err := json.Marshal(openAIChatRequest{
		Model: t.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
		Temperature:    0.2,
		ResponseFormat: openAIResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return Result{}, fail(err)
	}

	utils.Log.Debugf("[translate] %q", title)
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		URL:    t.endpoint,
		Method: http.MethodPost,
		Body:   string(reqBody),
		Headers: []whttp.WHTTPHeader{
			{Name: "Authorization", Value: "Bearer " + t.apiKey},
			{Name: "Content-Type", Value: "application/json"},
		},
	}, t.client)
	if err != nil {
		return Result{}, fail(err)
	}

	if res.StatusCode >= 300 {
		detail := gjson.Get(res.BodyString, "error.message").String()
		return Result{}, fail(callerr.FromStatus("openai chat completion", res.StatusCode, detail))
	}

	content := strings.TrimSpace(gjson.Get(res.BodyString, "choices.0.message.content").String())
	if content == "" {
		return Result{}, fail(callerr.New(callerr.ParseFailure, "openai chat completion", "empty response"))
	}
	if !gjson.Valid(content) {
		return Result{}, fail(callerr.New(callerr.ParseFailure, "openai chat completion", "response is not JSON"))
	}

	parsed := gjson.Parse(content)
	out := Result{
		Title:          parsed.Get("title").String(),
		Description:    parsed.Get("description").String(),
		SEOTitle:       parsed.Get("seo_title").String(),
		SEODescription: parsed.Get("seo_description").String(),
	}
	if strings.TrimSpace(out.Title) == "" {
		return Result{}, fail(callerr.New(callerr.ParseFailure, "openai chat completion", "missing title"))
	}
	out = finish(out)

	if t.detector != nil && t.stillJapanese(out.Title) {
		return Result{}, fail(errors.New("translated title is still Japanese"))
	}
	return out, nil
}

func (t *openAITranslator) stillJapanese(s string) bool {
	lang, ok := t.detector.DetectLanguageOf(s)
	return ok && lang == lingua.Japanese
}

const systemPrompt = `You translate Japanese confectionery product listings into natural English for an online store.

Input is a JSON object with "title" and "description". The description may contain HTML.

Rules:
- Translate the title into concise English. Keep brand names and keep romanized names of traditional sweets (for example "Dorayaki", "Yokan").
- Translate the description. Keep the HTML structure and tags exactly, translating only the text.
- Convert units and weights as written; do not invent allergens, ingredients or shelf life.
- Write "seo_title" (at most 70 characters) and "seo_description" (at most 320 characters, plain text).

Return ONLY JSON following this schema:
{"title": "string", "description": "string", "seo_title": "string", "seo_description": "string"}`

type openAIChatRequest struct {
	Model          string               `json:"model"`
	Messages       []openAIMessage      `json:"messages"`
	Temperature    float64              `json:"temperature"`
	ResponseFormat openAIResponseFormat `json:"response_format"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}
