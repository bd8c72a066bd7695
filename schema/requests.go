package schema

// TabQuery filters a host tab query. Zero-valued filters match everything.
type TabQuery struct {
	// Pinned restricts the result to pinned tabs.
	Pinned bool
	// Active restricts the result to active tabs.
	Active bool
	// Scope restricts the result to one window; nil spans all windows.
	Scope *Scope
}

// CreateTabRequest asks the host to open a tab.
type CreateTabRequest struct {
	Scope  Scope
	URL    string
	Pinned bool
	Active bool
}

// UpdateTabRequest asks the host to change a tab's pinned flag.
type UpdateTabRequest struct {
	TabID  TabID
	Pinned bool
}

// RestoreResult reports what a restore did for a scope.
type RestoreResult struct {
	Scope   Scope
	Created []string
	Skipped []string
}
