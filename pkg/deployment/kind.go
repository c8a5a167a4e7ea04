// Package deployment holds deployed component descriptors and the registry that maps
// symbolic names to compact wire indices.
package deployment

import (
	"fmt"
	"strings"
)

// Kind is the behavioral category of a deployed component.
type Kind string

const (
	KindStateless     Kind = "stateless"
	KindStateful      Kind = "stateful"
	KindEntity        Kind = "entity"
	KindSingleton     Kind = "singleton"
	KindMessageDriven Kind = "message-driven"
)

// ParseKind parses a component kind, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindStateless, KindStateful, KindEntity, KindSingleton, KindMessageDriven:
		return k, nil
	default:
		return "", fmt.Errorf("deployment:kind - unknown component kind %q", s)
	}
}

func (k Kind) String() string { return string(k) }
