package logx

import (
	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// WithScope annotates the logger with the restore scope.
func WithScope(log pslog.Logger, scope schema.Scope) pslog.Logger {
	if id, ok := scope.WindowID(); ok {
		return log.With("scope", scope.String(), "window", int(id))
	}
	return log.With("scope", scope.String())
}

// WithTab annotates the logger with a tab id.
func WithTab(log pslog.Logger, tabID schema.TabID) pslog.Logger {
	return log.With("tab", int(tabID))
}

// WithEvent annotates the logger with the event type and any tab or window
// the event refers to.
func WithEvent(log pslog.Logger, event schema.HostEvent) pslog.Logger {
	log = log.With("event", string(event.Type))
	switch {
	case event.Tab != nil:
		log = log.With("tab", int(event.Tab.ID))
	case event.TabID != 0:
		log = log.With("tab", int(event.TabID))
	}
	if event.Window != nil {
		log = log.With("window", int(event.Window.ID), "window_type", string(event.Window.Type))
	}
	return log
}
