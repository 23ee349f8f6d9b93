package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"postcal/pkg/logx"
)

func TestDisabled(t *testing.T) {
	if _, err := (Disabled{}).Optimize(context.Background(), "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v", err)
	}
	o := NewOllama(Settings{Enabled: false}, logx.Nop())
	if _, err := o.Optimize(context.Background(), "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v", err)
	}
}

func TestRender(t *testing.T) {
	s := Settings{Prompt: "fix: {{content}}!"}
	if got := s.Render("hi"); got != "fix: hi!" {
		t.Fatalf("got %q", got)
	}
	s.Prompt = "fix"
	if got := s.Render("hi"); got != "fix\n\nhi" {
		t.Fatalf("got %q", got)
	}
}

func TestOllamaGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","response":"  Better text.\n","done":true}`))
	}))
	defer srv.Close()

	o := NewOllama(Settings{Enabled: true, BaseURL: srv.URL + "/", Model: "m", Prompt: "P {{content}}"}, logx.Nop())
	out, err := o.Optimize(context.Background(), "bad text")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Better text." {
		t.Fatalf("out=%q", out)
	}
	if got.Model != "m" || got.Prompt != "P bad text" || got.Stream {
		t.Fatalf("request=%+v", got)
	}
}

func TestOllamaRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"ok","done":true}`))
	}))
	defer srv.Close()

	o := NewOllama(Settings{Enabled: true, BaseURL: srv.URL, RetryMax: 3}, logx.Nop())
	out, err := o.Optimize(context.Background(), "x")
	if err != nil || out != "ok" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls=%d", n)
	}
}

func TestOllamaErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(Settings{Enabled: true, BaseURL: srv.URL}, logx.Nop())
	if _, err := o.Optimize(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err=%v", err)
	}
	if _, err := o.Optimize(context.Background(), "  "); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("blank input err=%v", err)
	}
}

func TestOllamaEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"   ","done":true}`))
	}))
	defer srv.Close()

	o := NewOllama(Settings{Enabled: true, BaseURL: srv.URL}, logx.Nop())
	if _, err := o.Optimize(context.Background(), "x"); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("err=%v", err)
	}
}

func TestOllamaTimeoutAndApply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	o := NewOllama(Settings{Enabled: true, BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, logx.Nop())
	start := time.Now()
	if _, err := o.Optimize(context.Background(), "x"); err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not honoured")
	}

	o.Apply(Settings{Enabled: false})
	if _, err := o.Optimize(context.Background(), "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("after apply err=%v", err)
	}
	if s := o.Settings(); s.BaseURL != DefaultBaseURL || s.Timeout != DefaultTimeout {
		t.Fatalf("defaults not applied: %+v", s)
	}
}
