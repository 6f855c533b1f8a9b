package rewards

import (
	"errors"
	"fmt"
)

// ErrBrokenLineage marks an ancestor referenced by path or parent_id that no
// longer exists. Non-fatal: propagation continues for the ancestors that did
// resolve, and the gap is left for reconciliation.
var ErrBrokenLineage = errors.New("broken lineage")

// TransientStoreError wraps a per-level credit failure that exhausted its
// retry budget. The level is skipped, not the whole event.
type TransientStoreError struct {
	Level int
	Err   error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error at level %d: %v", e.Level, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }
