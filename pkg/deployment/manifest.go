package deployment

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const manifestLogPrefix = "deployment:manifest"

// Key generator strategies accepted in a manifest.
const (
	KeygenNone     = ""
	KeygenQuery    = "query"
	KeygenSequence = "sequence"
)

// Manifest lists the deployments a server installs at startup.
type Manifest struct {
	Deployments []ManifestEntry `yaml:"deployments"`
}

// ManifestEntry describes one deployment in a manifest.
type ManifestEntry struct {
	ID              string `yaml:"id"`
	Kind            string `yaml:"kind"`
	HomeInterface   string `yaml:"home_interface"`
	RemoteInterface string `yaml:"remote_interface"`
	LocalInterface  string `yaml:"local_interface"`
	PrimaryKeyType  string `yaml:"primary_key_type"`
	Version         string `yaml:"version"`
	// Bean names the factory registered in container.BeanFactories.
	Bean string `yaml:"bean"`
	// PoolSize bounds the stateless instance pool.
	PoolSize int `yaml:"pool_size"`
	// SessionTimeout is the stateful idle timeout ("30m").
	SessionTimeout string       `yaml:"session_timeout"`
	Keygen         KeygenConfig `yaml:"keygen"`
}

// KeygenConfig selects and configures an entity's primary key generator.
type KeygenConfig struct {
	Strategy  string `yaml:"strategy"`
	InitSQL   string `yaml:"init_sql"`
	Query     string `yaml:"query"`
	Sequence  string `yaml:"sequence"`
	BatchSize int    `yaml:"batch_size"`
	// Store is "postgres" or "bolt" for the sequence strategy.
	Store string `yaml:"store"`
}

// LoadManifest reads and validates a YAML deployment manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read %s: %w", manifestLogPrefix, path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s - %s: %w", manifestLogPrefix, path, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d deployments from %s", manifestLogPrefix, len(m.Deployments), path))
	return m, nil
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest yaml: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every entry and returns the first problem found.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Deployments))
	for i, e := range m.Deployments {
		if e.ID == "" {
			return fmt.Errorf("deployment #%d: id is required", i+1)
		}
		if seen[e.ID] {
			return fmt.Errorf("deployment %s: duplicate id", e.ID)
		}
		seen[e.ID] = true
		if err := e.Validate(); err != nil {
			return fmt.Errorf("deployment %s: %w", e.ID, err)
		}
	}
	return nil
}

// Validate checks a single manifest entry.
func (e *ManifestEntry) Validate() error {
	kind, err := ParseKind(e.Kind)
	if err != nil {
		return err
	}
	if e.Bean == "" && kind != KindMessageDriven {
		return fmt.Errorf("bean factory is required")
	}
	if e.PoolSize < 0 {
		return fmt.Errorf("pool_size must not be negative")
	}
	if _, err := e.Timeout(); err != nil {
		return err
	}
	switch e.Keygen.Strategy {
	case KeygenNone:
		if kind == KindEntity {
			return fmt.Errorf("entity deployments require a keygen strategy")
		}
	case KeygenQuery:
		if e.Keygen.Query == "" {
			return fmt.Errorf("keygen query is required for the query strategy")
		}
	case KeygenSequence:
		if e.Keygen.Sequence == "" {
			return fmt.Errorf("keygen sequence name is required for the sequence strategy")
		}
		if e.Keygen.BatchSize < 0 {
			return fmt.Errorf("keygen batch_size must not be negative")
		}
		switch e.Keygen.Store {
		case "", "postgres", "bolt":
		default:
			return fmt.Errorf("unknown keygen store %q", e.Keygen.Store)
		}
	default:
		return fmt.Errorf("unknown keygen strategy %q", e.Keygen.Strategy)
	}
	return nil
}

// Timeout parses SessionTimeout. Zero means sessions never expire.
func (e *ManifestEntry) Timeout() (time.Duration, error) {
	if e.SessionTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.SessionTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid session_timeout %q: %w", e.SessionTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("session_timeout must not be negative")
	}
	return d, nil
}

// DescriptorParams returns the descriptor fields declared by the entry.
func (e *ManifestEntry) DescriptorParams() DescriptorParams {
	kind, _ := ParseKind(e.Kind)
	return DescriptorParams{
		ID:              e.ID,
		Kind:            kind,
		HomeInterface:   e.HomeInterface,
		RemoteInterface: e.RemoteInterface,
		LocalInterface:  e.LocalInterface,
		PrimaryKeyType:  e.PrimaryKeyType,
		Version:         e.Version,
	}
}
