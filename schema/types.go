package schema

import "strconv"

// TabID identifies a live browser tab.
type TabID int

// WindowID identifies a browser window.
type WindowID int

// WindowType classifies a browser window.
type WindowType string

const (
	// WindowNormal is a regular browsing window.
	WindowNormal WindowType = "normal"
	// WindowPopup is a popup window.
	WindowPopup WindowType = "popup"
	// WindowPanel is a panel window.
	WindowPanel WindowType = "panel"
	// WindowApp is an app window.
	WindowApp WindowType = "app"
	// WindowDevTools is a developer tools window.
	WindowDevTools WindowType = "devtools"
)

// Tab is the host's view of a live tab at query time.
type Tab struct {
	ID       TabID    `json:"id"`
	WindowID WindowID `json:"windowId"`
	URL      string   `json:"url"`
	Pinned   bool     `json:"pinned"`
	Active   bool     `json:"active"`
}

// Window describes a browser window.
type Window struct {
	ID   WindowID   `json:"id"`
	Type WindowType `json:"type"`
}

// Scope selects the window a restore checks and populates.
// The zero value is the default scope: whatever window the host treats as
// current when the call is made.
type Scope struct {
	window WindowID
	set    bool
}

// DefaultScope returns the current-window scope.
func DefaultScope() Scope {
	return Scope{}
}

// WindowScope returns a scope bound to a specific window.
func WindowScope(id WindowID) Scope {
	return Scope{window: id, set: true}
}

// IsDefault reports whether the scope defers to the host's current window.
func (s Scope) IsDefault() bool {
	return !s.set
}

// WindowID returns the bound window id and whether one is set.
func (s Scope) WindowID() (WindowID, bool) {
	return s.window, s.set
}

func (s Scope) String() string {
	if !s.set {
		return "default"
	}
	return "window:" + strconv.Itoa(int(s.window))
}
