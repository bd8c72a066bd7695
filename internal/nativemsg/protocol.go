package nativemsg

import (
	"encoding/json"
	"errors"
	"fmt"

	"pkt.systems/pinkeep/schema"
)

// Kind distinguishes envelopes on the wire.
type Kind string

const (
	// KindEvent carries a host lifecycle event from the browser.
	KindEvent Kind = "event"
	// KindRequest asks the other side to perform a method.
	KindRequest Kind = "request"
	// KindResponse answers a request with the same id.
	KindResponse Kind = "response"
)

// Methods the host process calls on the browser.
const (
	MethodTabsQuery  = "tabs.query"
	MethodTabsCreate = "tabs.create"
	MethodTabsUpdate = "tabs.update"
)

// Methods the browser may call on the host process.
const (
	MethodPinsList       = "pins.list"
	MethodPinsDelete     = "pins.delete"
	MethodPinsAddCurrent = "pins.addCurrent"
)

// Error codes carried in response errors.
const (
	CodeWindowNotFound = "window_not_found"
	CodeTabNotFound    = "tab_not_found"
	CodeUnavailable    = "unavailable"
	CodeNoActiveTab    = "no_active_tab"
	CodeOutOfRange     = "out_of_range"
	CodeBadRequest     = "bad_request"
	CodeInternal       = "internal"
)

// Envelope is one native message.
type Envelope struct {
	Kind   Kind              `json:"kind"`
	ID     string            `json:"id,omitempty"`
	Method string            `json:"method,omitempty"`
	Params json.RawMessage   `json:"params,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *Error            `json:"error,omitempty"`
	Event  *schema.HostEvent `json:"event,omitempty"`
}

// Error is a response error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e == nil {
		return "native message error"
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps wire codes onto the shared sentinel errors.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case CodeWindowNotFound:
		return schema.ErrWindowNotFound
	case CodeTabNotFound:
		return schema.ErrTabNotFound
	case CodeUnavailable:
		return schema.ErrHostUnavailable
	case CodeNoActiveTab:
		return schema.ErrNoActiveTab
	case CodeOutOfRange:
		return schema.ErrIndexOutOfRange
	default:
		return nil
	}
}

// errorFor converts a handler error into a wire error.
func errorFor(err error) *Error {
	code := CodeInternal
	switch {
	case errors.Is(err, schema.ErrWindowNotFound):
		code = CodeWindowNotFound
	case errors.Is(err, schema.ErrTabNotFound):
		code = CodeTabNotFound
	case errors.Is(err, schema.ErrHostUnavailable):
		code = CodeUnavailable
	case errors.Is(err, schema.ErrNoActiveTab):
		code = CodeNoActiveTab
	case errors.Is(err, schema.ErrIndexOutOfRange):
		code = CodeOutOfRange
	case errors.Is(err, errBadRequest):
		code = CodeBadRequest
	}
	return &Error{Code: code, Message: err.Error()}
}

var errBadRequest = errors.New("bad request")

type queryParams struct {
	Pinned        *bool            `json:"pinned,omitempty"`
	Active        *bool            `json:"active,omitempty"`
	WindowID      *schema.WindowID `json:"windowId,omitempty"`
	CurrentWindow bool             `json:"currentWindow,omitempty"`
}

type createParams struct {
	WindowID *schema.WindowID `json:"windowId,omitempty"`
	URL      string           `json:"url"`
	Pinned   bool             `json:"pinned"`
	Active   bool             `json:"active"`
}

type updateParams struct {
	TabID  schema.TabID `json:"tabId"`
	Pinned bool         `json:"pinned"`
}

type deleteParams struct {
	Index int `json:"index"`
}

type pinsResult struct {
	URLs []string `json:"urls"`
}

func toQueryParams(query schema.TabQuery) queryParams {
	var params queryParams
	if query.Pinned {
		params.Pinned = boolPtr(true)
	}
	if query.Active {
		params.Active = boolPtr(true)
	}
	if query.Scope != nil {
		if id, ok := query.Scope.WindowID(); ok {
			params.WindowID = &id
		} else {
			params.CurrentWindow = true
		}
	}
	return params
}

func toCreateParams(req schema.CreateTabRequest) createParams {
	params := createParams{URL: req.URL, Pinned: req.Pinned, Active: req.Active}
	if id, ok := req.Scope.WindowID(); ok {
		params.WindowID = &id
	}
	return params
}

func boolPtr(v bool) *bool {
	return &v
}
