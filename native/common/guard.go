package common

import (
	"fmt"

	coreerrors "portfolium/core/errors"
)

// ErrModulePaused is returned for calls into a module an admin has paused.
var ErrModulePaused = fmt.Errorf("%w: module paused", coreerrors.ErrInvalidState)

// PauseView reports whether a module currently rejects mutating calls.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused. A nil view or an
// empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
