package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"postcal/internal/post"
	"postcal/internal/store"
	"postcal/pkg/logx"
)

type stubOptimizer struct {
	out string
	err error
}

func (o stubOptimizer) Optimize(context.Context, string) (string, error) { return o.out, o.err }

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New()
	now := time.Date(2024, 10, 19, 10, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	s := New(Config{}, st, logx.Nop(), opts...)
	s.SetCalendar(time.UTC, time.Sunday)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestCreateGetList(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/posts", `{"date":"2024-10-05","time":"09:00","content":"Hello"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var p post.Post
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatal(err)
	}
	if p.ID == "" || p.Kind != post.KindText || p.Date != post.MustDate(2024, 10, 5) {
		t.Fatalf("post=%+v", p)
	}
	if resp.Header.Get("Location") != "/api/posts/"+p.ID {
		t.Fatalf("location=%q", resp.Header.Get("Location"))
	}
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Fatal("missing request id")
	}

	do(t, http.MethodPost, srv.URL+"/api/posts", `{"date":"2024-10-06","time":"10:00","content":"pic","type":"image"}`)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/posts/"+p.ID, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"time":"09:00"`) {
		t.Fatalf("get status=%d body=%s", resp.StatusCode, body)
	}
	if resp, _ = do(t, http.MethodGet, srv.URL+"/api/posts/404", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status=%d", resp.StatusCode)
	}

	var list []post.Post
	_, body = do(t, http.MethodGet, srv.URL+"/api/posts?type=image", "")
	_ = json.Unmarshal(body, &list)
	if len(list) != 1 || list[0].Content != "pic" {
		t.Fatalf("filtered=%s", body)
	}
	_, body = do(t, http.MethodGet, srv.URL+"/api/posts?q=HEL", "")
	list = nil
	_ = json.Unmarshal(body, &list)
	if len(list) != 1 || list[0].Content != "Hello" {
		t.Fatalf("searched=%s", body)
	}
}

func TestCreateWithHashtagsAndImageURL(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/posts",
		`{"date":"2024-10-25","time":"10:00","content":"Throwback","hashtags":["TBT","#CompanyCulture"],"image_url":"https://example.com/retreat.jpg"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var p post.Post
	_ = json.Unmarshal(body, &p)
	if p.Kind != post.KindImage || p.Content != "Throwback\n\n#TBT #CompanyCulture" {
		t.Fatalf("post=%+v", p)
	}

	_, body = do(t, http.MethodPost, srv.URL+"/api/posts",
		`{"date":"2024-10-25","time":"11:00","content":"read this","type":"link","image_url":"https://example.com/x.png"}`)
	_ = json.Unmarshal(body, &p)
	if p.Kind != post.KindLink {
		t.Fatalf("explicit type overridden: %+v", p)
	}
}

func TestCreateValidation(t *testing.T) {
	srv, st := newTestServer(t)
	cases := map[string]string{
		`{"date":"2024-02-30","time":"09:00","content":"x"}`:              "date",
		`{"date":"2024-10-05","time":"9","content":"x"}`:                  "time",
		`{"date":"2024-10-05","time":"09:00","content":"x","type":"gif"}`: "type",
	}
	for body, field := range cases {
		resp, out := do(t, http.MethodPost, srv.URL+"/api/posts", body)
		var e ErrorResponse
		_ = json.Unmarshal(out, &e)
		if resp.StatusCode != http.StatusBadRequest || e.Field != field {
			t.Fatalf("%s: status=%d body=%s", body, resp.StatusCode, out)
		}
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/api/posts", `{"date":"2024-10-05","bogus":1}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field status=%d", resp.StatusCode)
	}
	if st.Len() != 0 {
		t.Fatal("invalid input must not create posts")
	}
}

func TestPatchAndDelete(t *testing.T) {
	srv, st := newTestServer(t)
	p, _ := st.Create(post.Draft{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "a", Kind: post.KindText})

	resp, body := do(t, http.MethodPatch, srv.URL+"/api/posts/"+p.ID, `{"type":"link","content":"https://x"}`)
	var pr patchResponse
	_ = json.Unmarshal(body, &pr)
	if resp.StatusCode != http.StatusOK || !pr.Applied || pr.Post.Kind != post.KindLink || pr.Post.ID != p.ID {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPatch, srv.URL+"/api/posts/999", `{"content":"x"}`)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"applied":false}` {
		t.Fatalf("unknown patch status=%d body=%s", resp.StatusCode, body)
	}
	if resp, _ = do(t, http.MethodPatch, srv.URL+"/api/posts/"+p.ID, `{"type":"gif"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid patch status=%d", resp.StatusCode)
	}

	for range 2 {
		if resp, _ = do(t, http.MethodDelete, srv.URL+"/api/posts/"+p.ID, ""); resp.StatusCode != http.StatusNoContent {
			t.Fatalf("delete status=%d", resp.StatusCode)
		}
	}
	if st.Len() != 0 {
		t.Fatal("post not removed")
	}
}

func TestOptimize(t *testing.T) {
	srv, st := newTestServer(t, WithOptimizer(stubOptimizer{out: "Shiny"}))
	p, _ := st.Create(post.Draft{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "dull", Kind: post.KindText})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/posts/"+p.ID+"/optimize", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Shiny") {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}

	srv2, st2 := newTestServer(t, WithOptimizer(stubOptimizer{err: errors.New("connection refused")}))
	p2, _ := st2.Create(post.Draft{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "dull", Kind: post.KindText})
	if resp, _ = do(t, http.MethodPost, srv2.URL+"/api/posts/"+p2.ID+"/optimize", ""); resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("failure status=%d", resp.StatusCode)
	}
	if got, _ := st2.Get(p2.ID); got.Content != "dull" {
		t.Fatal("failed optimization must not change content")
	}

	srv3, st3 := newTestServer(t)
	p3, _ := st3.Create(post.Draft{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "dull", Kind: post.KindText})
	if resp, _ = do(t, http.MethodPost, srv3.URL+"/api/posts/"+p3.ID+"/optimize", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("disabled status=%d", resp.StatusCode)
	}
}

func TestCalendarViews(t *testing.T) {
	srv, st := newTestServer(t)
	_, _ = st.Seed([]post.Draft{
		{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(15, 0), Content: "late", Kind: post.KindText},
		{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "early", Kind: post.KindImage},
		{Date: post.MustDate(2024, 11, 1), Time: post.MustClock(9, 0), Content: "nov", Kind: post.KindText},
	})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/calendar/2024/10", "")
	var mv struct {
		Month string `json:"month"`
		Title string `json:"title"`
		Total int    `json:"total"`
		Weeks [][]struct {
			Date  string `json:"date"`
			Today bool   `json:"today"`
		} `json:"weeks"`
		Weekdays []string `json:"weekdays"`
	}
	if err := json.Unmarshal(body, &mv); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d err=%v body=%s", resp.StatusCode, err, body)
	}
	if mv.Month != "2024-10" || mv.Title != "October 2024" || mv.Total != 2 || len(mv.Weeks) != 5 {
		t.Fatalf("view=%+v", mv)
	}
	if mv.Weeks[0][0].Date != "2024-09-29" || mv.Weekdays[0] != "Sun" {
		t.Fatalf("grid start=%s weekday=%s", mv.Weeks[0][0].Date, mv.Weekdays[0])
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/calendar/2024/10?week_start=monday&type=image", "")
	mv.Weekdays, mv.Total = nil, 0
	_ = json.Unmarshal(body, &mv)
	if mv.Weekdays[0] != "Mon" || mv.Total != 1 {
		t.Fatalf("monday view=%+v", mv)
	}

	var day dayResponse
	_, body = do(t, http.MethodGet, srv.URL+"/api/calendar/2024/10/5", "")
	if err := json.Unmarshal(body, &day); err != nil {
		t.Fatal(err)
	}
	if len(day.Posts) != 2 || day.Posts[0].Content != "early" || day.Today {
		t.Fatalf("day=%s", body)
	}

	for _, bad := range []string{"/api/calendar/2024/13", "/api/calendar/2024/02/30", "/api/calendar/2024/10?type=gif"} {
		if resp, _ := do(t, http.MethodGet, srv.URL+bad, ""); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s status=%d", bad, resp.StatusCode)
		}
	}
}

func TestHealthAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set(HeaderRequestID, "abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get(HeaderRequestID) != "abc" {
		t.Fatalf("status=%d rid=%q", resp.StatusCode, resp.Header.Get(HeaderRequestID))
	}
	if resp, _ := do(t, http.MethodPut, srv.URL+"/api/posts", ""); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("put status=%d", resp.StatusCode)
	}
}

func TestStartStop(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Pprof: true}, store.New(), logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, _ := do(t, http.MethodGet, "http://"+s.Addr()+"/debug/pprof/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof status=%d", resp.StatusCode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
