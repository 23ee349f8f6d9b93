// Package optimizer rewrites post content through a local language model.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"postcal/pkg/logx"
)

var (
	ErrDisabled    = errors.New("optimizer: disabled")
	ErrEmptyResult = errors.New("optimizer: empty result")
)

// Optimizer returns an improved version of content. It never touches the store.
type Optimizer interface {
	Optimize(ctx context.Context, content string) (string, error)
}

// Disabled is the Optimizer used when no backend is configured.
type Disabled struct{}

func (Disabled) Optimize(context.Context, string) (string, error) { return "", ErrDisabled }

const (
	DefaultBaseURL = "http://127.0.0.1:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 30 * time.Second
	DefaultPrompt  = "Rewrite the following social media post so it is clear and engaging. " +
		"Keep the language and meaning. Reply with the rewritten post only.\n\n{{content}}"

	placeholder = "{{content}}"
)

type Settings struct {
	Enabled    bool
	BaseURL    string
	Model      string
	Prompt     string
	Timeout    time.Duration
	RetryMax   int
	RatePerSec int // 0 means unlimited
}

func (s Settings) withDefaults() Settings {
	if strings.TrimSpace(s.BaseURL) == "" {
		s.BaseURL = DefaultBaseURL
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if strings.TrimSpace(s.Model) == "" {
		s.Model = DefaultModel
	}
	if strings.TrimSpace(s.Prompt) == "" {
		s.Prompt = DefaultPrompt
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.RetryMax < 0 {
		s.RetryMax = 0
	}
	return s
}

// Render fills the prompt template. A template without the placeholder gets
// the content appended.
func (s Settings) Render(content string) string {
	if strings.Contains(s.Prompt, placeholder) {
		return strings.ReplaceAll(s.Prompt, placeholder, content)
	}
	return s.Prompt + "\n\n" + content
}

// Ollama calls the /api/generate endpoint of an Ollama server. Settings can be
// swapped at runtime with Apply.
type Ollama struct {
	log logx.Logger

	mu     sync.RWMutex
	s      Settings
	client *resty.Client
	lim    *rate.Limiter
}

func NewOllama(s Settings, log logx.Logger) *Ollama {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Ollama{log: log.Component("optimizer")}
	o.Apply(s)
	return o
}

// Apply replaces the settings. In-flight calls finish with the old client.
func (o *Ollama) Apply(s Settings) {
	s = s.withDefaults()
	c := resty.New().
		SetBaseURL(s.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(s.RetryMax).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})

	lim := rate.NewLimiter(rate.Inf, 1)
	if s.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(s.RatePerSec), s.RatePerSec)
	}

	o.mu.Lock()
	o.s, o.client, o.lim = s, c, lim
	o.mu.Unlock()
}

func (o *Ollama) Settings() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.s
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *Ollama) Optimize(ctx context.Context, content string) (string, error) {
	o.mu.RLock()
	s, c, lim := o.s, o.client, o.lim
	o.mu.RUnlock()

	if !s.Enabled {
		return "", ErrDisabled
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResult
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	if err := lim.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	var out generateResponse
	resp, err := c.R().
		SetContext(ctx).
		SetBody(&generateRequest{Model: s.Model, Prompt: s.Render(content)}).
		SetResult(&out).
		Post("/api/generate")
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	text := strings.TrimSpace(out.Response)
	o.log.Debug("content optimized",
		logx.String("model", s.Model),
		logx.Int("in_len", len(content)),
		logx.Int("out_len", len(text)),
		logx.Duration("dur", time.Since(start)),
	)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}
