package nativemsg

import (
	"context"
	"encoding/json"
	"fmt"
)

// PinEditor is the list editing surface exposed to the extension popup.
type PinEditor interface {
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, index int) ([]string, error)
	AddCurrentTab(ctx context.Context) ([]string, error)
}

// PinHandler serves pins.* requests from the browser.
type PinHandler struct {
	editor PinEditor
}

// NewPinHandler returns a Handler backed by editor.
func NewPinHandler(editor PinEditor) *PinHandler {
	return &PinHandler{editor: editor}
}

// HandleRequest implements Handler.
func (h *PinHandler) HandleRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	var (
		urls []string
		err  error
	)
	switch method {
	case MethodPinsList:
		urls, err = h.editor.List(ctx)
	case MethodPinsDelete:
		var p deleteParams
		if len(params) == 0 {
			return nil, fmt.Errorf("%w: missing index", errBadRequest)
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		urls, err = h.editor.Delete(ctx, p.Index)
	case MethodPinsAddCurrent:
		urls, err = h.editor.AddCurrentTab(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown method %q", errBadRequest, method)
	}
	if err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []string{}
	}
	return pinsResult{URLs: urls}, nil
}
