// Package bot implements the chat command surface over the post store and
// the calendar queries.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"postcal/internal/calendar"
	"postcal/internal/optimizer"
	"postcal/internal/post"
	"postcal/internal/store"
	"postcal/internal/transport"
)

var htmlOpt = &transport.SendOptions{HTML: true, DisablePreview: true}

type usageError string

func (u usageError) Error() string { return "Usage: " + string(u) }

// userMessage turns a handler error into chat text.
func userMessage(err error) string {
	var u usageError
	switch {
	case errors.As(err, &u), post.IsValidation(err):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out, try again."
	case errors.Is(err, optimizer.ErrDisabled):
		return "The optimizer is not enabled."
	default:
		return "Something went wrong: " + err.Error()
	}
}

// view is the per-chat presentation state.
type view struct {
	month calendar.Month
	query calendar.Query
}

type Option func(*Bot)

func WithClock(now func() time.Time) Option { return func(b *Bot) { b.now = now } }

func WithOptimizer(o optimizer.Optimizer) Option { return func(b *Bot) { b.opt = o } }

// Bot holds the command handlers. View state is kept per chat and never
// reaches the store.
type Bot struct {
	posts *store.Store
	opt   optimizer.Optimizer
	now   func() time.Time

	mu        sync.Mutex
	loc       *time.Location
	weekStart time.Weekday
	views     map[transport.ChatTarget]*view
}

func New(posts *store.Store, opts ...Option) *Bot {
	b := &Bot{
		posts: posts,
		opt:   optimizer.Disabled{},
		now:   time.Now,
		loc:   time.Local,
		views: map[transport.ChatTarget]*view{},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SetCalendar changes the timezone used for "today" and the grid's first weekday.
func (b *Bot) SetCalendar(loc *time.Location, weekStart time.Weekday) {
	if loc == nil {
		loc = time.Local
	}
	b.mu.Lock()
	b.loc, b.weekStart = loc, weekStart
	b.mu.Unlock()
}

func (b *Bot) clock() (time.Time, *time.Location, time.Weekday) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().In(b.loc), b.loc, b.weekStart
}

// viewOf returns a copy of the chat's state, creating it on first use.
func (b *Bot) viewOf(chat transport.ChatTarget) view {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.views[chat]
	if !ok {
		v = &view{month: calendar.MonthOfTime(b.now().In(b.loc)), query: calendar.Query{Filter: post.FilterAll}}
		b.views[chat] = v
	}
	return *v
}

func (b *Bot) updateView(chat transport.ChatTarget, fn func(v *view)) view {
	b.viewOf(chat)
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.views[chat]
	fn(v)
	return *v
}

// Register installs the handlers on r.
func (b *Bot) Register(r *Router) {
	cmds := []Command{
		{Name: "new", Usage: "/new <YYYY-MM-DD> <HH:MM> [text|image|link] <content…>", Description: "schedule a post", Access: AccessOwner, Handle: b.cmdNew},
		{Name: "edit", Usage: "/edit <id> [--date D] [--time T] [--type K] [--content C]", Description: "change fields of a post", Access: AccessOwner, Handle: b.cmdEdit},
		{Name: "delete", Aliases: []string{"del", "rm"}, Usage: "/delete <id>", Description: "remove a post", Access: AccessOwner, Handle: b.cmdDelete},
		{Name: "list", Aliases: []string{"ls"}, Usage: "/list", Description: "posts matching the current filter and search", Handle: b.cmdList},
		{Name: "month", Aliases: []string{"cal"}, Usage: "/month [prev|next|today|YYYY-MM]", Description: "show the month calendar", Handle: b.cmdMonth},
		{Name: "day", Usage: "/day <YYYY-MM-DD>", Description: "posts on one day", Handle: b.cmdDay},
		{Name: "filter", Usage: "/filter <all|text|image|link>", Description: "restrict views to one post type", Handle: b.cmdFilter},
		{Name: "search", Usage: "/search [term]", Description: "restrict views to posts containing term; no term clears", Handle: b.cmdSearch},
		{Name: "optimize", Usage: "/optimize <id>", Description: "rewrite a post's content with the language model", Access: AccessOwner, Handle: b.cmdOptimize},
	}
	cmds = append(cmds, Command{
		Name: "help", Aliases: []string{"start"}, Usage: "/help", Description: "this message",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, renderHelp(cmds), htmlOpt)
		},
	})
	cbs := []CallbackRoute{
		{Prefix: cbMonth, Handle: b.cbMonth},
		{Prefix: cbDay, Handle: b.cbDay},
	}
	r.Register(cmds, cbs)
}

func (b *Bot) cmdNew(ctx context.Context, req *Request) error {
	const usage = usageError("/new <YYYY-MM-DD> <HH:MM> [text|image|link] <content…> [--tag T]… [--image URL]")
	a := req.Args
	if len(a) < 2 {
		return usage
	}
	kind, content := "", ""
	if len(a) >= 4 {
		if _, err := post.ParseKind(a[2]); err == nil {
			kind, content = a[2], strings.Join(a[3:], " ")
		}
	}
	if kind == "" && len(a) > 2 {
		content = strings.Join(a[2:], " ")
	}
	if k, ok := req.Flags.Get("type"); ok {
		kind = k
	}
	if kind == "" {
		img, _ := req.Flags.Get("image")
		kind = post.InferKind(img).String()
	}
	content = post.WithHashtags(content, req.Flags.All("tag"))
	d, err := post.ParseDraft(a[0], a[1], content, kind)
	if err != nil {
		return err
	}
	p, err := b.posts.Create(d)
	if err != nil {
		return err
	}
	return req.Reply(ctx, postCard("✅ <b>Scheduled</b>", p), htmlOpt)
}

func optional(flags Flags, key string) *string {
	if v, ok := flags.Get(key); ok {
		return &v
	}
	return nil
}

func (b *Bot) cmdEdit(ctx context.Context, req *Request) error {
	const usage = usageError("/edit <id> [--date D] [--time T] [--type K] [--content C]")
	if len(req.Args) < 1 {
		return usage
	}
	id := strings.TrimPrefix(req.Args[0], "#")
	content := optional(req.Flags, "content")
	if content == nil && len(req.Args) > 1 {
		s := strings.Join(req.Args[1:], " ")
		content = &s
	}
	patch, err := post.ParsePatch(optional(req.Flags, "date"), optional(req.Flags, "time"), content, optional(req.Flags, "type"))
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return usage
	}
	p, ok, err := b.posts.Update(id, patch)
	if err != nil {
		return err
	}
	if !ok {
		return req.Reply(ctx, "No post #"+id+"; nothing changed.", nil)
	}
	return req.Reply(ctx, postCard("✏️ <b>Updated</b> ("+esc(strings.Join(patch.Fields(), ", "))+")", p), htmlOpt)
}

func (b *Bot) cmdDelete(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return usageError("/delete <id>")
	}
	id := strings.TrimPrefix(req.Args[0], "#")
	if !b.posts.Remove(id) {
		return req.Reply(ctx, "No post #"+id+"; nothing removed.", nil)
	}
	return req.Reply(ctx, "🗑 Removed #"+id+".", nil)
}

func (b *Bot) cmdList(ctx context.Context, req *Request) error {
	v := b.viewOf(req.Chat)
	return req.Reply(ctx, renderList(calendar.FilterPosts(b.posts.List(), v.query), v.query), htmlOpt)
}

func (b *Bot) monthReply(v view) (string, *transport.SendOptions) {
	now, _, weekStart := b.clock()
	mv := calendar.BuildMonth(b.posts.List(), v.query, v.month, weekStart, now)
	text, kb := renderMonth(mv, v.query)
	return text, &transport.SendOptions{HTML: true, DisablePreview: true, Keyboard: kb}
}

func (b *Bot) cmdMonth(ctx context.Context, req *Request) error {
	arg := ""
	if len(req.Args) > 0 {
		arg = strings.ToLower(req.Args[0])
	}
	now, _, _ := b.clock()
	var target calendar.Month
	cur := b.viewOf(req.Chat).month
	switch arg {
	case "":
		target = cur
	case "prev", "next":
		step := 1
		if arg == "prev" {
			step = -1
		}
		m, ok := cur.Shift(step)
		if !ok {
			return usageError("/month [prev|next|today|YYYY-MM] (" + calendar.MinMonth.Key() + " to " + calendar.MaxMonth.Key() + ")")
		}
		target = m
	case "today":
		target = calendar.MonthOfTime(now)
	default:
		m, err := calendar.ParseMonth(arg)
		if err != nil {
			return usageError("/month [prev|next|today|YYYY-MM]")
		}
		target = m
	}
	v := b.updateView(req.Chat, func(v *view) { v.month = target })
	text, opt := b.monthReply(v)
	return req.Reply(ctx, text, opt)
}

func (b *Bot) dayReply(chat transport.ChatTarget, day post.Date) string {
	now, loc, _ := b.clock()
	q := b.viewOf(chat).query
	posts := calendar.SortByInstant(calendar.PostsOnDay(calendar.FilterPosts(b.posts.List(), q), day))
	return renderDay(day, posts, q, loc, now)
}

func (b *Bot) cmdDay(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return usageError("/day <YYYY-MM-DD>")
	}
	var day post.Date
	if strings.EqualFold(req.Args[0], "today") {
		now, _, _ := b.clock()
		day = post.DateOf(now)
	} else {
		d, err := post.ParseDate(req.Args[0])
		if err != nil {
			return err
		}
		day = d
	}
	return req.Reply(ctx, b.dayReply(req.Chat, day), htmlOpt)
}

func (b *Bot) cmdFilter(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return usageError("/filter <all|text|image|link>")
	}
	f, err := post.ParseFilter(req.Args[0])
	if err != nil {
		return err
	}
	b.updateView(req.Chat, func(v *view) { v.query.Filter = f })
	return req.Reply(ctx, "Filter set to "+f.String()+".", nil)
}

func (b *Bot) cmdSearch(ctx context.Context, req *Request) error {
	term := strings.TrimSpace(strings.Join(req.Args, " "))
	b.updateView(req.Chat, func(v *view) { v.query.Search = term })
	if term == "" {
		return req.Reply(ctx, "Search cleared.", nil)
	}
	return req.Reply(ctx, "Searching for “"+term+"”.", nil)
}

func (b *Bot) cmdOptimize(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return usageError("/optimize <id>")
	}
	id := strings.TrimPrefix(req.Args[0], "#")
	p, ok := b.posts.Get(id)
	if !ok {
		return req.Reply(ctx, "No post #"+id+".", nil)
	}
	out, err := b.opt.Optimize(ctx, p.Content)
	if err != nil {
		return err
	}
	updated, ok, err := b.posts.Update(id, post.Patch{Content: &out})
	if err != nil {
		return err
	}
	if !ok {
		return req.Reply(ctx, "Post #"+id+" was removed meanwhile.", nil)
	}
	return req.Reply(ctx, postCard("✨ <b>Optimized</b>", updated), htmlOpt)
}

func (b *Bot) cbMonth(ctx context.Context, req *Request, payload string) error {
	m, err := calendar.ParseMonth(payload)
	if err != nil {
		return nil
	}
	v := b.updateView(req.Chat, func(v *view) { v.month = m })
	text, opt := b.monthReply(v)
	return req.Edit(ctx, text, opt)
}

func (b *Bot) cbDay(ctx context.Context, req *Request, payload string) error {
	d, err := post.ParseDate(payload)
	if err != nil {
		return nil
	}
	return req.Reply(ctx, b.dayReply(req.Chat, d), htmlOpt)
}
