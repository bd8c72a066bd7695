package schema

// HostEventType names a lifecycle notification delivered by the host.
type HostEventType string

const (
	// EventTabUpdated fires when a tab property changes.
	EventTabUpdated HostEventType = "tab_updated"
	// EventTabCreated fires when a tab is opened.
	EventTabCreated HostEventType = "tab_created"
	// EventTabRemoved fires when a tab is closed.
	EventTabRemoved HostEventType = "tab_removed"
	// EventTabDetached fires when a tab leaves a window.
	EventTabDetached HostEventType = "tab_detached"
	// EventTabAttached fires when a tab joins a window.
	EventTabAttached HostEventType = "tab_attached"
	// EventStartup fires once when the browser cold-starts.
	EventStartup HostEventType = "startup"
	// EventInstalled fires when the extension is installed or updated.
	EventInstalled HostEventType = "installed"
	// EventWindowCreated fires when a window is opened.
	EventWindowCreated HostEventType = "window_created"
)

// TabChange lists the fields a tab_updated event changed. A nil Pinned or
// empty URL means that field did not change.
type TabChange struct {
	Pinned *bool  `json:"pinned,omitempty"`
	URL    string `json:"url,omitempty"`
}

// HostEvent is a single host lifecycle notification.
type HostEvent struct {
	Type   HostEventType `json:"type"`
	TabID  TabID         `json:"tabId,omitempty"`
	Change TabChange     `json:"change,omitempty"`
	Tab    *Tab          `json:"tab,omitempty"`
	Window *Window       `json:"window,omitempty"`
}
