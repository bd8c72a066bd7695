// Package memhost is an in-memory browser tab directory. It implements the
// engine's host interface, publishes the same lifecycle events a browser
// would, and records every command it receives.
package memhost

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pinkeep/schema"
)

// Publisher receives the lifecycle events the host emits.
type Publisher interface {
	Publish(event schema.HostEvent)
}

// Op names a host command for error injection.
type Op string

const (
	// OpQuery is QueryTabs.
	OpQuery Op = "query"
	// OpCreate is CreateTab.
	OpCreate Op = "create"
	// OpUpdate is UpdateTab.
	OpUpdate Op = "update"
)

// Host is a concurrency-safe in-memory browser.
type Host struct {
	mu      sync.Mutex
	pub     Publisher
	nextTab schema.TabID
	nextWin schema.WindowID
	windows map[schema.WindowID]*window
	winList []schema.WindowID
	tabs    map[schema.TabID]*schema.Tab
	order   []schema.TabID
	current schema.WindowID
	created []schema.CreateTabRequest
	updated []schema.UpdateTabRequest
	failing map[Op]error
}

type window struct {
	info   schema.Window
	active schema.TabID
}

// New constructs an empty host. pub may be nil.
func New(pub Publisher) *Host {
	return &Host{
		pub:     pub,
		nextTab: 1,
		nextWin: 1,
		windows: make(map[schema.WindowID]*window),
		tabs:    make(map[schema.TabID]*schema.Tab),
		failing: make(map[Op]error),
	}
}

// Fail makes every later call of op return err; a nil err clears it.
func (h *Host) Fail(op Op, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.failing, op)
		return
	}
	h.failing[op] = err
}

// Created returns the CreateTab requests received so far.
func (h *Host) Created() []schema.CreateTabRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schema.CreateTabRequest(nil), h.created...)
}

// Updated returns the UpdateTab requests received so far.
func (h *Host) Updated() []schema.UpdateTabRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schema.UpdateTabRequest(nil), h.updated...)
}

// Tabs returns every live tab in discovery order.
func (h *Host) Tabs() []schema.Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.matchLocked(schema.TabQuery{}, 0, false)
}

// QueryTabs implements the host query.
func (h *Host) QueryTabs(ctx context.Context, query schema.TabQuery) ([]schema.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failing[OpQuery]; err != nil {
		return nil, err
	}
	var scoped schema.WindowID
	hasScope := false
	if query.Scope != nil {
		id, err := h.resolveLocked(*query.Scope)
		if err != nil {
			return nil, err
		}
		scoped, hasScope = id, true
	}
	return h.matchLocked(query, scoped, hasScope), nil
}

// CreateTab implements the host create command.
func (h *Host) CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.Tab, error) {
	if err := ctx.Err(); err != nil {
		return schema.Tab{}, err
	}
	h.mu.Lock()
	h.created = append(h.created, req)
	if err := h.failing[OpCreate]; err != nil {
		h.mu.Unlock()
		return schema.Tab{}, err
	}
	id, err := h.resolveLocked(req.Scope)
	if err != nil {
		h.mu.Unlock()
		return schema.Tab{}, err
	}
	tab := h.addTabLocked(id, req.URL, req.Pinned, req.Active)
	h.mu.Unlock()
	h.publish(schema.HostEvent{Type: schema.EventTabCreated, TabID: tab.ID, Tab: &tab})
	return tab, nil
}

// UpdateTab implements the host update command.
func (h *Host) UpdateTab(ctx context.Context, req schema.UpdateTabRequest) (schema.Tab, error) {
	if err := ctx.Err(); err != nil {
		return schema.Tab{}, err
	}
	h.mu.Lock()
	h.updated = append(h.updated, req)
	if err := h.failing[OpUpdate]; err != nil {
		h.mu.Unlock()
		return schema.Tab{}, err
	}
	h.mu.Unlock()
	return h.SetPinned(req.TabID, req.Pinned)
}

// OpenWindow opens a window of the given type, makes it current when it is
// a normal window, and emits window_created.
func (h *Host) OpenWindow(kind schema.WindowType) schema.Window {
	h.mu.Lock()
	info := schema.Window{ID: h.nextWin, Type: kind}
	h.nextWin++
	h.windows[info.ID] = &window{info: info}
	h.winList = append(h.winList, info.ID)
	if kind == schema.WindowNormal || h.current == 0 {
		h.current = info.ID
	}
	h.mu.Unlock()
	h.publish(schema.HostEvent{Type: schema.EventWindowCreated, Window: &info})
	return info
}

// CloseWindow removes a window and every tab in it, emitting tab_removed for
// each tab.
func (h *Host) CloseWindow(id schema.WindowID) {
	h.mu.Lock()
	if _, ok := h.windows[id]; !ok {
		h.mu.Unlock()
		return
	}
	var removed []schema.TabID
	for _, tabID := range h.order {
		if h.tabs[tabID].WindowID == id {
			removed = append(removed, tabID)
		}
	}
	for _, tabID := range removed {
		h.removeTabLocked(tabID)
	}
	delete(h.windows, id)
	for i, winID := range h.winList {
		if winID == id {
			h.winList = append(h.winList[:i], h.winList[i+1:]...)
			break
		}
	}
	if h.current == id {
		h.current = 0
		if len(h.winList) > 0 {
			h.current = h.winList[len(h.winList)-1]
		}
	}
	h.mu.Unlock()
	for _, tabID := range removed {
		h.publish(schema.HostEvent{Type: schema.EventTabRemoved, TabID: tabID})
	}
}

// Focus makes a window current.
func (h *Host) Focus(id schema.WindowID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.windows[id]; !ok {
		return fmt.Errorf("%w: %d", schema.ErrWindowNotFound, id)
	}
	h.current = id
	return nil
}

// OpenTab opens an active tab as a user would, emitting tab_created.
func (h *Host) OpenTab(id schema.WindowID, url string, pinned bool) (schema.Tab, error) {
	h.mu.Lock()
	if _, ok := h.windows[id]; !ok {
		h.mu.Unlock()
		return schema.Tab{}, fmt.Errorf("%w: %d", schema.ErrWindowNotFound, id)
	}
	tab := h.addTabLocked(id, url, pinned, true)
	h.mu.Unlock()
	h.publish(schema.HostEvent{Type: schema.EventTabCreated, TabID: tab.ID, Tab: &tab})
	return tab, nil
}

// SetPinned changes a tab's pinned flag, emitting tab_updated when it changes.
func (h *Host) SetPinned(id schema.TabID, pinned bool) (schema.Tab, error) {
	h.mu.Lock()
	tab, ok := h.tabs[id]
	if !ok {
		h.mu.Unlock()
		return schema.Tab{}, fmt.Errorf("%w: %d", schema.ErrTabNotFound, id)
	}
	changed := tab.Pinned != pinned
	tab.Pinned = pinned
	after := *tab
	h.mu.Unlock()
	if changed {
		flag := pinned
		h.publish(schema.HostEvent{Type: schema.EventTabUpdated, TabID: id, Change: schema.TabChange{Pinned: &flag}, Tab: &after})
	}
	return after, nil
}

// Navigate changes a tab's URL, emitting tab_updated.
func (h *Host) Navigate(id schema.TabID, url string) (schema.Tab, error) {
	h.mu.Lock()
	tab, ok := h.tabs[id]
	if !ok {
		h.mu.Unlock()
		return schema.Tab{}, fmt.Errorf("%w: %d", schema.ErrTabNotFound, id)
	}
	tab.URL = url
	after := *tab
	h.mu.Unlock()
	h.publish(schema.HostEvent{Type: schema.EventTabUpdated, TabID: id, Change: schema.TabChange{URL: url}, Tab: &after})
	return after, nil
}

// CloseTab removes a tab, emitting tab_removed.
func (h *Host) CloseTab(id schema.TabID) error {
	h.mu.Lock()
	if _, ok := h.tabs[id]; !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %d", schema.ErrTabNotFound, id)
	}
	h.removeTabLocked(id)
	h.mu.Unlock()
	h.publish(schema.HostEvent{Type: schema.EventTabRemoved, TabID: id})
	return nil
}

// MoveTab moves a tab to another window, emitting tab_detached then
// tab_attached.
func (h *Host) MoveTab(id schema.TabID, to schema.WindowID) error {
	h.mu.Lock()
	tab, ok := h.tabs[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %d", schema.ErrTabNotFound, id)
	}
	if _, ok := h.windows[to]; !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %d", schema.ErrWindowNotFound, to)
	}
	if from := h.windows[tab.WindowID]; from != nil && from.active == id {
		from.active = 0
		tab.Active = false
	}
	tab.WindowID = to
	h.mu.Unlock()
	h.publish(schema.HostEvent{Type: schema.EventTabDetached, TabID: id})
	h.publish(schema.HostEvent{Type: schema.EventTabAttached, TabID: id})
	return nil
}

func (h *Host) resolveLocked(scope schema.Scope) (schema.WindowID, error) {
	id, ok := scope.WindowID()
	if !ok {
		if h.current == 0 {
			return 0, fmt.Errorf("%w: no current window", schema.ErrWindowNotFound)
		}
		return h.current, nil
	}
	if _, exists := h.windows[id]; !exists {
		return 0, fmt.Errorf("%w: %d", schema.ErrWindowNotFound, id)
	}
	return id, nil
}

func (h *Host) matchLocked(query schema.TabQuery, scoped schema.WindowID, hasScope bool) []schema.Tab {
	out := make([]schema.Tab, 0, len(h.order))
	for _, id := range h.order {
		tab := h.tabs[id]
		if query.Pinned && !tab.Pinned {
			continue
		}
		if query.Active && !tab.Active {
			continue
		}
		if hasScope && tab.WindowID != scoped {
			continue
		}
		out = append(out, *tab)
	}
	return out
}

func (h *Host) addTabLocked(id schema.WindowID, url string, pinned, active bool) schema.Tab {
	tab := &schema.Tab{ID: h.nextTab, WindowID: id, URL: url, Pinned: pinned}
	h.nextTab++
	h.tabs[tab.ID] = tab
	h.order = append(h.order, tab.ID)
	win := h.windows[id]
	if active || win.active == 0 {
		if prev, ok := h.tabs[win.active]; ok {
			prev.Active = false
		}
		win.active = tab.ID
		tab.Active = true
	}
	return *tab
}

func (h *Host) removeTabLocked(id schema.TabID) {
	tab := h.tabs[id]
	delete(h.tabs, id)
	for i, existing := range h.order {
		if existing == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	if win := h.windows[tab.WindowID]; win != nil && win.active == id {
		win.active = 0
	}
}

func (h *Host) publish(event schema.HostEvent) {
	if h.pub != nil {
		h.pub.Publish(event)
	}
}
