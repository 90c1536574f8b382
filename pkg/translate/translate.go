// Package translate converts Japanese product copy into storefront-ready English.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrTranslation wraps every translator failure so callers can tell translation failures
// apart from other errors with errors.Is.
var ErrTranslation = errors.New("translation failed")

// Result is the translated copy of one product.
type Result struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	SEOTitle       string `json:"seo_title"`
	SEODescription string `json:"seo_description"`
}

// Translator defines the behavior required to translate product copy.
type Translator interface {
	Translate(ctx context.Context, title, description string) (Result, error)
}

// Config controls which translator is built.
type Config struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// VerifyLanguage rejects output that is still detected as Japanese.
	VerifyLanguage bool `mapstructure:"verify_language"`
}

const (
	defaultProvider = "openai"
	defaultModel    = "gpt-4.1-mini"
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultTimeout  = 60 * time.Second

	maxSEOTitle       = 70
	maxSEODescription = 320
)

// New builds a concrete Translator based on the provided config.
func New(cfg Config) (Translator, error) {
	cfg.Provider = strings.TrimSpace(strings.ToLower(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = defaultProvider
	}

	switch cfg.Provider {
	case "openai":
		return newOpenAI(cfg)
	case "passthrough":
		return Passthrough{}, nil
	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", cfg.Provider)
	}
}

// Passthrough returns the source copy unchanged. Used for dev runs without an API key.
type Passthrough struct{}

func (Passthrough) Translate(ctx context.Context, title, description string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fail(err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Result{}, fail(errors.New("empty title"))
	}
	return finish(Result{Title: title, Description: description}), nil
}

func fail(err error) error {
	if errors.Is(err, ErrTranslation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTranslation, err)
}

// finish fills missing SEO fields from the title and description and trims them to the
// storefront limits.
func finish(r Result) Result {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	if strings.TrimSpace(r.SEOTitle) == "" {
		r.SEOTitle = r.Title
	}
	if strings.TrimSpace(r.SEODescription) == "" {
		r.SEODescription = plainText(r.Description)
	}
	r.SEOTitle = truncate(strings.TrimSpace(r.SEOTitle), maxSEOTitle)
	r.SEODescription = truncate(strings.TrimSpace(r.SEODescription), maxSEODescription)
	return r
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}

// plainText drops markup, keeping the text content of every node.
func plainText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	var parts []string
	doc.Find("body").Contents().Each(func(_ int, sel *goquery.Selection) {
		parts = append(parts, sel.Text())
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
