package bot

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"postcal/internal/optimizer"
	"postcal/internal/post"
	"postcal/internal/store"
	"postcal/internal/transport"
	"postcal/pkg/logx"
)

type sent struct {
	text string
	opt  *transport.SendOptions
	edit bool
}

type fakeAdapter struct {
	mu      sync.Mutex
	out     chan sent
	answers []string
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{out: make(chan sent, 32)} }

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.out <- sent{text: text, opt: opt}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.out <- sent{text: text, opt: opt, edit: true}
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, text)
	f.mu.Unlock()
	return nil
}

type fakeOptimizer struct{ out string }

func (o fakeOptimizer) Optimize(context.Context, string) (string, error) {
	if o.out == "" {
		return "", optimizer.ErrDisabled
	}
	return o.out, nil
}

type harness struct {
	t       *testing.T
	ad      *fakeAdapter
	store   *store.Store
	bot     *Bot
	router  *Router
	updates chan transport.Update
}

var testNow = time.Date(2024, 10, 19, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, owners []int64, opts ...Option) *harness {
	t.Helper()
	h := &harness{t: t, ad: newFakeAdapter(), store: store.New(), updates: make(chan transport.Update, 8)}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	h.bot = New(h.store, opts...)
	h.bot.SetCalendar(time.UTC, time.Sunday)
	h.router = NewRouter(h.ad, logx.Nop(), WithWorkers(1), WithOwners(owners))
	h.bot.Register(h.router)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.router.Run(ctx, h.updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) say(from int64, text string) sent {
	h.t.Helper()
	h.updates <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: 100, FromID: from, Text: text}}
	return h.next()
}

func (h *harness) click(data string) sent {
	h.t.Helper()
	h.updates <- transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{ID: "cb", ChatID: 100, FromID: 1, MessageID: 9, Data: data}}
	return h.next()
}

func (h *harness) next() sent {
	h.t.Helper()
	select {
	case s := <-h.ad.out:
		return s
	case <-time.After(2 * time.Second):
		h.t.Fatal("no reply")
	}
	return sent{}
}

func TestTokenize(t *testing.T) {
	got := tokenize(`/new 2024-10-05 09:00 text "hello world" it\'s`)
	want := []string{"/new", "2024-10-05", "09:00", "text", "hello world", "it's"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q", got)
	}
	if got := tokenize(`/search ""`); len(got) != 2 || got[1] != "" {
		t.Fatalf("empty quoted arg lost: %q", got)
	}
	if tokenize("   ") != nil {
		t.Fatal("blank must yield nil")
	}
}

func TestParseFlags(t *testing.T) {
	pos, flags := parseFlags([]string{"3", "--date", "2024-10-06", "--type=link", "--content", "--tag", "a", "--tag=b", "--x"})
	if len(pos) != 1 || pos[0] != "3" {
		t.Fatalf("pos=%q", pos)
	}
	if d, _ := flags.Get("date"); d != "2024-10-06" {
		t.Fatalf("flags=%v", flags)
	}
	if k, _ := flags.Get("type"); k != "link" {
		t.Fatalf("flags=%v", flags)
	}
	if v, ok := flags.Get("content"); !ok || v != "" {
		t.Fatalf("content flag=%q ok=%v", v, ok)
	}
	if tags := flags.All("tag"); !slices.Equal(tags, []string{"a", "b"}) {
		t.Fatalf("tags=%q", tags)
	}
	if _, ok := flags.Get("missing"); ok {
		t.Fatal("missing flag reported present")
	}
	if commandWord("/New@postcal_bot") != "new" {
		t.Fatal("command word")
	}
}

func TestNewListDelete(t *testing.T) {
	h := newHarness(t, nil)

	r := h.say(1, `/new 2024-10-05 09:00 "Launch day"`)
	if !strings.Contains(r.text, "Scheduled") || !strings.Contains(r.text, "Text") {
		t.Fatalf("reply=%q", r.text)
	}
	h.say(1, `/new 2024-10-06 10:30 link https://example.com`)

	ps := h.store.List()
	if len(ps) != 2 || ps[0].Kind != post.KindText || ps[1].Kind != post.KindLink || ps[1].Content != "https://example.com" {
		t.Fatalf("posts=%+v", ps)
	}

	r = h.say(1, "/list")
	if !strings.Contains(r.text, "2 posts") || strings.Index(r.text, "Launch day") > strings.Index(r.text, "example.com") {
		t.Fatalf("list=%q", r.text)
	}

	r = h.say(1, "/delete "+ps[0].ID)
	if !strings.Contains(r.text, "Removed") || h.store.Len() != 1 {
		t.Fatalf("reply=%q len=%d", r.text, h.store.Len())
	}
	r = h.say(1, "/delete "+ps[0].ID)
	if !strings.Contains(r.text, "nothing removed") {
		t.Fatalf("second delete=%q", r.text)
	}
}

func TestNewWithTagsAndImage(t *testing.T) {
	h := newHarness(t, nil)

	r := h.say(1, `/new 2024-10-21 09:00 "launching soon" --tag NewProduct --tag "#Innovation" --image https://example.com/a.png`)
	if !strings.Contains(r.text, "Scheduled") {
		t.Fatalf("reply=%q", r.text)
	}
	ps := h.store.List()
	if len(ps) != 1 {
		t.Fatalf("posts=%d", len(ps))
	}
	if ps[0].Kind != post.KindImage || ps[0].Content != "launching soon\n\n#NewProduct #Innovation" {
		t.Fatalf("post=%+v", ps[0])
	}

	h.say(1, "/new 2024-10-22 10:00 plain words --tag x")
	if got := h.store.List()[1]; got.Kind != post.KindText || got.Content != "plain words\n\n#x" {
		t.Fatalf("post=%+v", got)
	}
}

func TestNewValidation(t *testing.T) {
	h := newHarness(t, nil)
	if r := h.say(1, "/new 2024-02-30 09:00 x"); !strings.Contains(r.text, "invalid date") {
		t.Fatalf("reply=%q", r.text)
	}
	if r := h.say(1, "/new"); !strings.Contains(r.text, "Usage") {
		t.Fatalf("reply=%q", r.text)
	}
	if h.store.Len() != 0 {
		t.Fatal("nothing should be created")
	}
}

func TestEdit(t *testing.T) {
	h := newHarness(t, nil)
	p, _ := h.store.Create(post.Draft{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "a", Kind: post.KindText})

	r := h.say(1, "/edit "+p.ID+" --type image --time 11:15")
	if !strings.Contains(r.text, "Updated") || !strings.Contains(r.text, "time, type") {
		t.Fatalf("reply=%q", r.text)
	}
	got, _ := h.store.Get(p.ID)
	if got.Kind != post.KindImage || got.Time != post.MustClock(11, 15) || got.Content != "a" {
		t.Fatalf("post=%+v", got)
	}

	if r := h.say(1, "/edit 999 --content x"); !strings.Contains(r.text, "nothing changed") {
		t.Fatalf("unknown id reply=%q", r.text)
	}
	if r := h.say(1, "/edit "+p.ID+" --type video"); !strings.Contains(r.text, "invalid type") {
		t.Fatalf("bad type reply=%q", r.text)
	}
}

func TestOwnerOnly(t *testing.T) {
	h := newHarness(t, []int64{1})
	if r := h.say(2, "/new 2024-10-05 09:00 x"); !strings.Contains(r.text, "Only owners") {
		t.Fatalf("reply=%q", r.text)
	}
	if r := h.say(2, "/list"); !strings.Contains(r.text, "No posts") {
		t.Fatalf("read-only command should be open: %q", r.text)
	}
	h.router.SetOwners(nil)
	if r := h.say(2, "/new 2024-10-05 09:00 x"); !strings.Contains(r.text, "Scheduled") {
		t.Fatalf("empty owner list should allow everyone: %q", r.text)
	}
}

func TestFilterAndSearchAreViewState(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.store.Seed([]post.Draft{
		{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "Hello World", Kind: post.KindText},
		{Date: post.MustDate(2024, 10, 6), Time: post.MustClock(9, 0), Content: "photo", Kind: post.KindImage},
	})

	h.say(1, "/filter image")
	if r := h.say(1, "/list"); !strings.Contains(r.text, "photo") || strings.Contains(r.text, "Hello") {
		t.Fatalf("filtered list=%q", r.text)
	}
	h.say(1, "/filter all")
	h.say(1, "/search WORLD")
	if r := h.say(1, "/list"); !strings.Contains(r.text, "Hello") || strings.Contains(r.text, "photo") {
		t.Fatalf("searched list=%q", r.text)
	}
	if r := h.say(1, "/filter video"); !strings.Contains(r.text, "invalid filter") {
		t.Fatalf("reply=%q", r.text)
	}
	if h.store.Len() != 2 {
		t.Fatal("view state must not touch the store")
	}
}

func TestMonthAndCallbacks(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.store.Create(post.Draft{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "x", Kind: post.KindText})

	r := h.say(1, "/month")
	if !strings.Contains(r.text, "October 2024") || !strings.Contains(r.text, "[19]") || !strings.Contains(r.text, "5•") {
		t.Fatalf("month=%q", r.text)
	}
	kb := r.opt.Keyboard
	if len(kb) != 2 || kb[0][0].Data != "cal:month:2024-09" || kb[0][2].Data != "cal:month:2024-11" || kb[1][0].Data != "cal:day:2024-10-05" {
		t.Fatalf("keyboard=%+v", kb)
	}

	r = h.click("cal:month:2024-11")
	if !r.edit || !strings.Contains(r.text, "November 2024") {
		t.Fatalf("callback=%+v", r)
	}
	if r = h.say(1, "/month prev"); !strings.Contains(r.text, "October 2024") {
		t.Fatalf("prev from November=%q", r.text)
	}

	r = h.click("cal:day:2024-10-05")
	if r.edit || !strings.Contains(r.text, "Saturday, October 5, 2024") || !strings.Contains(r.text, "1 post") {
		t.Fatalf("day=%q", r.text)
	}
	if r = h.say(1, "/month 2024-13"); !strings.Contains(r.text, "Usage") {
		t.Fatalf("bad month=%q", r.text)
	}
}

func TestMonthNavigationStopsAtRangeEdges(t *testing.T) {
	h := newHarness(t, nil)

	if r := h.say(1, "/month 9999-12"); !strings.Contains(r.text, "December 9999") {
		t.Fatalf("last month=%q", r.text)
	}
	if r := h.say(1, "/month next"); !strings.Contains(r.text, "Usage") {
		t.Fatalf("next past 9999-12=%q", r.text)
	}
	if r := h.say(1, "/month"); !strings.Contains(r.text, "December 9999") {
		t.Fatalf("view moved past the last month: %q", r.text)
	}

	if r := h.say(1, "/month 0001-01"); !strings.Contains(r.text, "January 1") {
		t.Fatalf("first month=%q", r.text)
	}
	if r := h.say(1, "/month prev"); !strings.Contains(r.text, "Usage") {
		t.Fatalf("prev before 0001-01=%q", r.text)
	}
	if r := h.click("cal:month:0001-01"); !r.edit || !strings.Contains(r.text, "January 1") {
		t.Fatalf("callback at first month=%+v", r)
	}
}

func TestOptimize(t *testing.T) {
	h := newHarness(t, nil, WithOptimizer(fakeOptimizer{out: "Better"}))
	p, _ := h.store.Create(post.Draft{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "meh", Kind: post.KindText})
	if r := h.say(1, "/optimize "+p.ID); !strings.Contains(r.text, "Better") {
		t.Fatalf("reply=%q", r.text)
	}
	if got, _ := h.store.Get(p.ID); got.Content != "Better" {
		t.Fatalf("content=%q", got.Content)
	}

	h2 := newHarness(t, nil)
	p2, _ := h2.store.Create(post.Draft{Date: post.MustDate(2024, 10, 5), Time: post.MustClock(9, 0), Content: "meh", Kind: post.KindText})
	if r := h2.say(1, "/optimize "+p2.ID); !strings.Contains(r.text, "not enabled") {
		t.Fatalf("reply=%q", r.text)
	}
}

func TestUnknownCommandAndHelp(t *testing.T) {
	h := newHarness(t, nil)
	if r := h.say(1, "/nope"); !strings.Contains(r.text, "Unknown command") {
		t.Fatalf("reply=%q", r.text)
	}
	r := h.say(1, "/help")
	for _, c := range []string{"/new", "/edit", "/month", "/optimize"} {
		if !strings.Contains(r.text, c) {
			t.Fatalf("help lacks %s: %q", c, r.text)
		}
	}
}

func TestPanicIsRecovered(t *testing.T) {
	h := newHarness(t, nil)
	h.router.Register([]Command{{Name: "boom", Handle: func(context.Context, *Request) error { panic("x") }}}, nil)
	if r := h.say(1, "/boom"); !strings.Contains(r.text, "panic") {
		t.Fatalf("reply=%q", r.text)
	}
}

func TestUserMessage(t *testing.T) {
	if got := userMessage(context.DeadlineExceeded); !strings.Contains(got, "Timed out") {
		t.Fatal(got)
	}
	if got := userMessage(errors.New("x")); !strings.HasPrefix(got, "Something went wrong") {
		t.Fatal(got)
	}
}
