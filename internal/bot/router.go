package bot

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"postcal/internal/runtime/supervisor"
	"postcal/internal/transport"
	"postcal/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessOwner requires the sender to be listed as an owner. An empty owner
	// list lets everyone through.
	AccessOwner
)

type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	Access      Access
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles callback data "<Prefix>:<payload>".
type CallbackRoute struct {
	Prefix string
	Access Access
	Handle CallbackHandlerFunc
}

type Request struct {
	Update  transport.Update
	Chat    transport.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Flags   Flags
	ReqID   string
	Log     logx.Logger

	adapter transport.Adapter
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *transport.SendOptions) error {
	_, err := r.adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

// Edit replaces the message a callback button was attached to. For message
// updates it falls back to Reply.
func (r *Request) Edit(ctx context.Context, text string, opt *transport.SendOptions) error {
	if cb := r.Update.Callback; cb != nil && cb.MessageID != 0 {
		return r.adapter.EditText(ctx, transport.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}, text, opt)
	}
	return r.Reply(ctx, text, opt)
}

type RouterOption func(*Router)

// WithWorkers sets the number of concurrent handlers; default 4.
func WithWorkers(n int) RouterOption { return func(r *Router) { r.workers = n } }

// WithTimeout bounds a single handler; default 15s.
func WithTimeout(d time.Duration) RouterOption { return func(r *Router) { r.timeout = d } }

func WithOwners(ids []int64) RouterOption { return func(r *Router) { r.owners = slices.Clone(ids) } }

// Router turns updates into handler calls on a bounded worker pool.
type Router struct {
	log     logx.Logger
	adapter transport.Adapter
	workers int
	timeout time.Duration

	mu        sync.RWMutex
	owners    []int64
	commands  map[string]*Command
	ordered   []*Command
	callbacks []CallbackRoute

	jobs chan func()
}

func NewRouter(adapter transport.Adapter, log logx.Logger, opts ...RouterOption) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:      log.Component("bot.router"),
		adapter:  adapter,
		workers:  4,
		timeout:  15 * time.Second,
		commands: map[string]*Command{},
	}
	for _, o := range opts {
		o(r)
	}
	r.workers = max(r.workers, 1)
	r.jobs = make(chan func(), 64*r.workers)
	return r
}

// SetOwners replaces the owner list; safe during hot reload.
func (r *Router) SetOwners(ids []int64) {
	cp := slices.Clone(ids)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) allowed(a Access, from int64) bool {
	if a != AccessOwner {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners) == 0 || slices.Contains(r.owners, from)
}

// Register installs commands and callback routes, replacing earlier ones.
func (r *Router) Register(cmds []Command, cbs []CallbackRoute) {
	byName := map[string]*Command{}
	ordered := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		if c.Name == "" || c.Handle == nil {
			continue
		}
		ordered = append(ordered, c)
		byName[c.Name] = c
		for _, a := range c.Aliases {
			if _, taken := byName[a]; !taken {
				byName[a] = c
			}
		}
	}
	r.mu.Lock()
	r.commands, r.ordered, r.callbacks = byName, ordered, slices.Clone(cbs)
	r.mu.Unlock()
}

// Commands lists registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.ordered))
	for _, c := range r.ordered {
		out = append(out, *c)
	}
	return out
}

// PublishMenu pushes the command list to adapters that support a menu.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(transport.MenuUpdater)
	if !ok {
		return nil
	}
	var menu []transport.BotCommand
	for _, c := range r.Commands() {
		menu = append(menu, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	return up.SetMenu(ctx, menu)
}

// Run dispatches updates until ctx ends or updates is closed, then waits
// briefly for in-flight handlers.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for i := range r.workers {
		sup.GoRestart("worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job()
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("queue_cap", cap(r.jobs)))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Stop(wctx)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// Route resolves one update and queues its handler.
func (r *Router) Route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		r.routeMessage(ctx, up)
	case transport.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	if msg == nil || !strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		return
	}
	toks := tokenize(msg.Text)
	if len(toks) == 0 {
		return
	}
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	word := commandWord(toks[0])

	r.mu.RLock()
	cmd := r.commands[word]
	r.mu.RUnlock()
	if cmd == nil {
		_, _ = r.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}
	if !r.allowed(cmd.Access, msg.FromID) {
		_, _ = r.adapter.SendText(ctx, chat, "Only owners can use /"+cmd.Name+".", nil)
		return
	}

	args, flags := parseFlags(toks[1:])
	req := r.newRequest(up, chat, msg.FromID, cmd.Name)
	req.Args, req.Flags = args, flags
	if !r.enqueue(ctx, req, cmd.Handle, nil) {
		_, _ = r.adapter.SendText(ctx, chat, "Busy, try again.", nil)
	}
}

func (r *Router) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	r.mu.RLock()
	var route *CallbackRoute
	var payload string
	for i := range r.callbacks {
		if p, ok := strings.CutPrefix(cb.Data, r.callbacks[i].Prefix+":"); ok {
			route, payload = &r.callbacks[i], p
			break
		}
	}
	r.mu.RUnlock()
	if route == nil {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if !r.allowed(route.Access, cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	req := r.newRequest(up, transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, route.Prefix)
	h := func(ctx context.Context, req *Request) error { return route.Handle(ctx, req, payload) }
	done := func() { _ = r.adapter.AnswerCallback(ctx, cb.ID, "") }
	if !r.enqueue(ctx, req, h, done) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (r *Router) newRequest(up transport.Update, chat transport.ChatTarget, from int64, name string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: name,
		Flags:   Flags{},
		ReqID:   rid,
		adapter: r.adapter,
		Log: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", name),
		),
	}
}

func (r *Router) enqueue(ctx context.Context, req *Request, h HandlerFunc, after func()) bool {
	final := Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(r.timeout))
	job := func() {
		if err := final(ctx, req); err != nil {
			_ = req.Reply(ctx, "⚠️ "+userMessage(err), nil)
		}
		if after != nil {
			after()
		}
	}
	select {
	case r.jobs <- job:
		return true
	default:
		return false
	}
}
