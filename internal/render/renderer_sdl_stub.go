//go:build !sdl

package render

import "errors"

// NewWindow is unavailable without the sdl build tag.
func NewWindow(title string, width, height int) (Presenter, error) {
	return nil, errors.New("SDL backend not enabled; rebuild with -tags sdl")
}

// SupportsSDL reports whether the binary was built with the sdl tag.
func SupportsSDL() bool { return false }
