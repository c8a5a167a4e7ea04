package deployment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleManifest = `
deployments:
  - id: OrderService
    kind: entity
    home_interface: com.acme.OrderHome
    remote_interface: com.acme.Order
    primary_key_type: long
    version: 1.2.0
    bean: order
    keygen:
      strategy: sequence
      sequence: orders
      batch_size: 50
      store: bolt
  - id: Cart
    kind: stateful
    bean: cart
    session_timeout: 30m
  - id: Greeter
    kind: stateless
    bean: greeter
    pool_size: 4
`

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatalf("deployment:manifest_test - write: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("deployment:manifest_test - LoadManifest: %v", err)
	}
	if len(m.Deployments) != 3 {
		t.Fatalf("deployment:manifest_test - got %d deployments, want 3", len(m.Deployments))
	}

	order := m.Deployments[0]
	if order.Keygen.Strategy != KeygenSequence || order.Keygen.BatchSize != 50 || order.Keygen.Store != "bolt" {
		t.Errorf("deployment:manifest_test - keygen = %+v", order.Keygen)
	}
	params := order.DescriptorParams()
	if params.Kind != KindEntity || params.HomeInterface != "com.acme.OrderHome" || params.Version != "1.2.0" {
		t.Errorf("deployment:manifest_test - descriptor params = %+v", params)
	}

	timeout, err := m.Deployments[1].Timeout()
	if err != nil || timeout != 30*time.Minute {
		t.Errorf("deployment:manifest_test - Timeout = %v, %v", timeout, err)
	}
	if m.Deployments[2].PoolSize != 4 {
		t.Errorf("deployment:manifest_test - PoolSize = %d, want 4", m.Deployments[2].PoolSize)
	}
}

func TestLoadManifest_MissingFile(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("deployment:manifest_test - expected error for missing file")
	}
}

func TestParseManifest_ValidationNamesEntry(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "deployments:\n  - kind: stateless\n    bean: x\n", "deployment #1"},
		{"duplicate", "deployments:\n  - {id: A, kind: stateless, bean: x}\n  - {id: A, kind: stateless, bean: x}\n", "duplicate"},
		{"bad kind", "deployments:\n  - {id: A, kind: bmp, bean: x}\n", "deployment A"},
		{"no bean", "deployments:\n  - {id: A, kind: stateless}\n", "bean factory"},
		{"entity without keygen", "deployments:\n  - {id: A, kind: entity, bean: x}\n", "keygen strategy"},
		{"query without sql", "deployments:\n  - {id: A, kind: entity, bean: x, keygen: {strategy: query}}\n", "keygen query"},
		{"bad store", "deployments:\n  - {id: A, kind: entity, bean: x, keygen: {strategy: sequence, sequence: s, store: redis}}\n", "keygen store"},
		{"bad timeout", "deployments:\n  - {id: A, kind: stateful, bean: x, session_timeout: soon}\n", "session_timeout"},
		{"bad yaml", "deployments: [", "invalid manifest yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			if err == nil {
				t.Fatal("deployment:manifest_test - expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("deployment:manifest_test - error %q does not mention %q", err, tt.want)
			}
		})
	}
}
