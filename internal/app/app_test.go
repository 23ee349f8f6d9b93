package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func baseConfig(dir string, optimizer bool) string {
	return `
telegram:
  enabled: false
http:
  enabled: true
  addr: "127.0.0.1:0"
logging:
  level: error
calendar:
  timezone: UTC
  seed:
    - date: "2024-10-21"
      time: "09:00"
      content: "launch teaser"
      type: text
optimizer:
  enabled: ` + map[bool]string{true: "true", false: "false"}[optimizer] + `
  model: llama3.2
storage:
  driver: file
  path: ` + filepath.Join(dir, "data", "postcal") + `
`
}

func startApp(t *testing.T, cfgPath string) *App {
	t.Helper()
	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopUnknown)
	})
	return a
}

func eventually(t *testing.T, what string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAppServesSeededPostsAndAudits(t *testing.T) {
	dir := t.TempDir()
	a := startApp(t, writeConfig(t, dir, baseConfig(dir, false)))

	if a.Posts().Len() != 1 {
		t.Fatalf("seeded posts = %d, want 1", a.Posts().Len())
	}
	base := "http://" + a.HTTPAddr()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var health struct {
		Status string `json:"status"`
		Posts  int    `json:"posts"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health.Status != "ok" || health.Posts != 1 {
		t.Fatalf("health = %+v", health)
	}

	body := `{"date":"2024-10-23","time":"11:00","content":"rock climbing","type":"image"}`
	resp, err = http.Post(base+"/api/posts", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	eventually(t, "audit entries", func() bool {
		entries, err := a.st.RecentAudit(context.Background(), 10)
		return err == nil && len(entries) == 2
	})
	entries, _ := a.st.RecentAudit(context.Background(), 10)
	if entries[0].Action != "create" || entries[0].Date != "2024-10-23" || entries[0].Kind != "image" {
		t.Fatalf("newest audit entry = %+v", entries[0])
	}
	if entries[1].Excerpt != "launch teaser" {
		t.Fatalf("seed audit entry = %+v", entries[1])
	}
}

func TestAppReloadAppliesOptimizerSettings(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig(dir, false))
	a := startApp(t, path)

	if a.opt.Settings().Enabled {
		t.Fatal("optimizer enabled before reload")
	}
	writeConfig(t, dir, baseConfig(dir, true))
	if _, err := a.cfgm.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	eventually(t, "optimizer enabled", func() bool { return a.opt.Settings().Enabled })
}

func TestAppReloadRejectsBadDigestSchedule(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig(dir, false))
	a := startApp(t, path)

	bad := baseConfig(dir, false) + `
digest:
  enabled: true
  schedule: "not a schedule"
  chat_id: -100
`
	writeConfig(t, dir, bad)
	if _, err := a.cfgm.Reload(context.Background()); err == nil {
		t.Fatal("Reload accepted an invalid digest schedule")
	}
}

func TestNewRejectsSQLiteWithoutPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
storage:
  driver: sqlite
`)
	if _, err := New(path); err == nil {
		t.Fatal("New accepted sqlite storage without a path")
	}
}

// openFilesUnder lists this process's open descriptors that point into dir.
func openFilesUnder(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("no /proc/self/fd: %v", err)
	}
	var out []string
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name()))
		if err == nil && strings.HasPrefix(target, dir) {
			out = append(out, target)
		}
	}
	return out
}

func TestNewReleasesStorageWhenBuildFails(t *testing.T) {
	dir := t.TempDir()
	body := baseConfig(dir, false) + `
digest:
  enabled: true
  schedule: "not a schedule"
  chat_id: -100
`
	path := writeConfig(t, dir, body)
	if _, err := New(path); err == nil || !strings.Contains(err.Error(), "digest.schedule") {
		t.Fatalf("New err = %v, want digest.schedule error", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "postcal.audit.jsonl")); err != nil {
		t.Fatalf("storage was not opened before the failure: %v", err)
	}
	if open := openFilesUnder(t, filepath.Join(dir, "data")); len(open) > 0 {
		t.Fatalf("storage files still open after failed New: %v", open)
	}
}
