package deployment

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/beanserver/pkg/container"
)

const descriptorLogPrefix = "deployment:descriptor"

// DescriptorParams holds the fields used to build a Descriptor.
type DescriptorParams struct {
	ID              string
	Kind            Kind
	HomeInterface   string
	RemoteInterface string
	LocalInterface  string
	PrimaryKeyType  string
	// Version is an optional semantic version ("1.2.0").
	Version   string
	Container container.Container
}

// Descriptor is the immutable metadata of one deployed component.
type Descriptor struct {
	id              string
	kind            Kind
	homeInterface   string
	remoteInterface string
	localInterface  string
	primaryKeyType  string
	version         *semver.Version
	container       container.Container
}

// NewDescriptor validates params and builds a Descriptor.
func NewDescriptor(p DescriptorParams) (*Descriptor, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%s - deployment id is required", descriptorLogPrefix)
	}
	if _, err := ParseKind(string(p.Kind)); err != nil {
		return nil, fmt.Errorf("%s - %s: %w", descriptorLogPrefix, p.ID, err)
	}

	d := &Descriptor{
		id:              p.ID,
		kind:            p.Kind,
		homeInterface:   p.HomeInterface,
		remoteInterface: p.RemoteInterface,
		localInterface:  p.LocalInterface,
		primaryKeyType:  p.PrimaryKeyType,
		container:       p.Container,
	}
	if p.Version != "" {
		v, err := semver.NewVersion(p.Version)
		if err != nil {
			return nil, fmt.Errorf("%s - %s: invalid version %q: %w", descriptorLogPrefix, p.ID, p.Version, err)
		}
		d.version = v
	}
	return d, nil
}

func (d *Descriptor) ID() string              { return d.id }
func (d *Descriptor) Kind() Kind              { return d.kind }
func (d *Descriptor) HomeInterface() string   { return d.homeInterface }
func (d *Descriptor) RemoteInterface() string { return d.remoteInterface }
func (d *Descriptor) LocalInterface() string  { return d.localInterface }
func (d *Descriptor) PrimaryKeyType() string  { return d.primaryKeyType }

// Container returns the owning container.
func (d *Descriptor) Container() container.Container { return d.container }

// Version returns the descriptor's semantic version, or nil when none was declared.
func (d *Descriptor) Version() *semver.Version { return d.version }

// VersionString returns the original version text, or "" when none was declared.
func (d *Descriptor) VersionString() string {
	if d.version == nil {
		return ""
	}
	return d.version.Original()
}

// WithContainer returns a copy of d owned by c.
func (d *Descriptor) WithContainer(c container.Container) *Descriptor {
	cp := *d
	cp.container = c
	return &cp
}
