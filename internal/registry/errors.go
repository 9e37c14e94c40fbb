package registry

import (
	"errors"
	"fmt"

	"github.com/rpattn/netgql/internal/domain"
)

var (
	// ErrAlreadyFinalized is returned by any registration or a second
	// Finalize once the registry has been finalized.
	ErrAlreadyFinalized = errors.New("filter registry already finalized")
	// ErrNotFinalized is returned when resolving handles before Finalize.
	ErrNotFinalized = errors.New("filter registry not finalized")
	// ErrDuplicateStub is returned when an entity registers a second stub.
	ErrDuplicateStub = errors.New("filter stub already registered")
)

// UnknownFilterError reports a declared filter with no derivable type. It is a
// modeling mistake and stops schema construction.
type UnknownFilterError struct {
	Entity string
	Filter string
	Kind   domain.FilterKind
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("filter %s on %s has kind %q with no filter type", e.Filter, e.Entity, e.Kind)
}
