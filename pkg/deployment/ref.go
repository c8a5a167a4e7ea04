package deployment

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Ref is a deployment name with an optional version constraint ("OrderService@^1.2").
type Ref struct {
	Name       string
	Constraint *semver.Constraints
}

// ParseRef parses "Name" or "Name@constraint".
func ParseRef(s string) (Ref, error) {
	name, constraint, hasConstraint := strings.Cut(strings.TrimSpace(s), "@")
	if name == "" {
		return Ref{}, fmt.Errorf("deployment:ref - empty deployment name in %q", s)
	}
	ref := Ref{Name: name}
	if !hasConstraint {
		return ref, nil
	}
	if constraint == "" {
		return Ref{}, fmt.Errorf("deployment:ref - empty version constraint in %q", s)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return Ref{}, fmt.Errorf("deployment:ref - invalid version constraint %q: %w", constraint, err)
	}
	ref.Constraint = c
	return ref, nil
}

// Matches reports whether d satisfies the reference's version constraint.
// A descriptor without a version never satisfies a constraint.
func (r Ref) Matches(d *Descriptor) bool {
	if r.Constraint == nil {
		return true
	}
	if d.Version() == nil {
		return false
	}
	return r.Constraint.Check(d.Version())
}

func (r Ref) String() string {
	if r.Constraint == nil {
		return r.Name
	}
	return r.Name + "@" + r.Constraint.String()
}
