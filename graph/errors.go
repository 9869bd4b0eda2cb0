package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateNode = errors.New("duplicate node")
	ErrUnknownInput  = errors.New("unknown input")
	ErrSealed        = errors.New("graph already sealed")
	ErrNotSealed     = errors.New("graph not sealed")
	ErrBadWindow     = errors.New("window must be at least 1")

	// ErrInvariant marks a node that violated its minperiod contract or
	// was stepped with misaligned inputs.
	ErrInvariant = errors.New("graph invariant violated")
)

// CyclicDependencyError is returned by Register when adding a node would
// close a cycle. Path lists the node names along the cycle.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}
