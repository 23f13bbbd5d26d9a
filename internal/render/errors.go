package render

import (
	"errors"
	"fmt"
)

// ErrUnknownAction is returned by Dispatch for an action with no handler.
var ErrUnknownAction = errors.New("render: unknown action")

// ErrRender matches any *RenderError via errors.Is.
var ErrRender = errors.New("render: render failed")

// RenderError reports a failure while building or acting on a page.
type RenderError struct {
	Module string
	Op     string // "parse", "action"
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s %s: %v", e.Module, e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRender) match.
func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}
