package nativemsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"pkt.systems/pinkeep/schema"
)

// Publisher receives host events read from the browser.
type Publisher interface {
	Publish(event schema.HostEvent)
}

// Handler serves requests initiated by the browser side.
type Handler interface {
	HandleRequest(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// Options configures a Bridge.
type Options struct {
	MaxIncoming int
	Publisher   Publisher
	Handler     Handler
	Logger      pslog.Logger
	NewID       func() string
}

// Bridge speaks the native messaging protocol over a reader/writer pair and
// exposes the browser's tab API as a core.Host.
type Bridge struct {
	r           io.Reader
	w           io.Writer
	maxIncoming int
	pub         Publisher
	handler     Handler
	log         pslog.Logger
	newID       func() string

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope
	closed  bool
	done    chan struct{}
}

// NewBridge constructs a Bridge. Run must be called to start reading.
func NewBridge(r io.Reader, w io.Writer, opts Options) *Bridge {
	maxIncoming := opts.MaxIncoming
	if maxIncoming <= 0 {
		maxIncoming = DefaultMaxIncoming
	}
	log := opts.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Bridge{
		r:           r,
		w:           w,
		maxIncoming: maxIncoming,
		pub:         opts.Publisher,
		handler:     opts.Handler,
		log:         log.With("component", "nativemsg"),
		newID:       newID,
		pending:     make(map[string]chan Envelope),
		done:        make(chan struct{}),
	}
}

// SetHandler installs the handler for browser-initiated requests. It must be
// called before Run.
func (b *Bridge) SetHandler(h Handler) {
	b.handler = h
}

// Done is closed once the bridge stops reading.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Run reads messages until the stream ends or ctx is cancelled. A clean EOF
// returns nil. Pending calls fail with schema.ErrHostUnavailable.
func (b *Bridge) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.readLoop(ctx)
	}()
	select {
	case <-ctx.Done():
		b.shutdown()
		return nil
	case err := <-errCh:
		b.shutdown()
		return err
	}
}

func (b *Bridge) readLoop(ctx context.Context) error {
	for {
		payload, err := ReadMessage(b.r, b.maxIncoming)
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.log.Info("native port closed")
				return nil
			}
			b.log.Warn("native message read failed", "err", err)
			return err
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			b.log.Warn("native message decode failed", "err", err, "bytes", len(payload))
			continue
		}
		b.dispatch(ctx, env)
	}
}

func (b *Bridge) dispatch(ctx context.Context, env Envelope) {
	switch env.Kind {
	case KindEvent:
		if env.Event == nil {
			b.log.Warn("native event missing body")
			return
		}
		b.log.Debug("native event", "event", env.Event.Type, "tab", env.Event.TabID)
		if b.pub != nil {
			b.pub.Publish(*env.Event)
		}
	case KindResponse:
		b.mu.Lock()
		ch, ok := b.pending[env.ID]
		delete(b.pending, env.ID)
		b.mu.Unlock()
		if !ok {
			b.log.Debug("native response without caller", "id", env.ID)
			return
		}
		ch <- env
	case KindRequest:
		go b.serve(ctx, env)
	default:
		b.log.Warn("native message kind unknown", "kind", env.Kind)
	}
}

func (b *Bridge) serve(ctx context.Context, req Envelope) {
	resp := Envelope{Kind: KindResponse, ID: req.ID}
	if b.handler == nil {
		resp.Error = &Error{Code: CodeUnavailable, Message: "no request handler"}
	} else {
		result, err := b.handler.HandleRequest(ctx, req.Method, req.Params)
		if err != nil {
			resp.Error = errorFor(err)
		} else if raw, err := json.Marshal(result); err != nil {
			resp.Error = errorFor(err)
		} else {
			resp.Result = raw
		}
	}
	if resp.Error != nil {
		b.log.Debug("native request failed", "method", req.Method, "code", resp.Error.Code)
	}
	if err := b.send(resp); err != nil {
		b.log.Warn("native response write failed", "method", req.Method, "err", err)
	}
}

func (b *Bridge) send(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return WriteMessage(b.w, payload)
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.pending = make(map[string]chan Envelope)
	close(b.done)
}

func (b *Bridge) call(ctx context.Context, method string, params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	id := b.newID()
	ch := make(chan Envelope, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return schema.ErrHostUnavailable
	}
	b.pending[id] = ch
	b.mu.Unlock()

	if err := b.send(Envelope{Kind: KindRequest, ID: id, Method: method, Params: raw}); err != nil {
		b.forget(id)
		return fmt.Errorf("%w: %s: %v", schema.ErrHostUnavailable, method, err)
	}

	select {
	case <-ctx.Done():
		b.forget(id)
		return ctx.Err()
	case <-b.done:
		return fmt.Errorf("%w: %s: port closed", schema.ErrHostUnavailable, method)
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// QueryTabs implements core.Host.
func (b *Bridge) QueryTabs(ctx context.Context, query schema.TabQuery) ([]schema.Tab, error) {
	var tabs []schema.Tab
	if err := b.call(ctx, MethodTabsQuery, toQueryParams(query), &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}

// CreateTab implements core.Host.
func (b *Bridge) CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.Tab, error) {
	var tab schema.Tab
	if err := b.call(ctx, MethodTabsCreate, toCreateParams(req), &tab); err != nil {
		return schema.Tab{}, err
	}
	return tab, nil
}

// UpdateTab implements core.Host.
func (b *Bridge) UpdateTab(ctx context.Context, req schema.UpdateTabRequest) (schema.Tab, error) {
	var tab schema.Tab
	if err := b.call(ctx, MethodTabsUpdate, updateParams{TabID: req.TabID, Pinned: req.Pinned}, &tab); err != nil {
		return schema.Tab{}, err
	}
	return tab, nil
}
