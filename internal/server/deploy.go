package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/keygen"
)

const deployLogPrefix = "server:deploy"

// Database is the subset of *pgxpool.Pool used by database-backed key generators.
type Database interface {
	keygen.Querier
	keygen.TxBeginner
}

// NewDeployerParams holds dependencies for NewDeployer.
type NewDeployerParams struct {
	Registry  *deployment.Registry
	Factories *container.BeanFactories
	// DB backs query generators and postgres sequence stores. Nil rejects those deployments.
	DB Database
	// BoltPath is the file opened on first use by a bolt sequence store.
	BoltPath string
}

// Deployer installs manifest entries into a Registry and owns their containers.
type Deployer struct {
	reg       *deployment.Registry
	factories *container.BeanFactories
	db        Database
	boltPath  string

	mu       sync.Mutex
	bolt     *keygen.BoltSequenceStore
	deployed []deployed
}

type deployed struct {
	name      string
	container container.Container
}

// NewDeployer creates a Deployer.
func NewDeployer(p NewDeployerParams) *Deployer {
	return &Deployer{
		reg:       p.Registry,
		factories: p.Factories,
		db:        p.DB,
		boltPath:  p.BoltPath,
	}
}

// Deploy installs every entry of m in order. It stops at the first failure;
// entries deployed before it stay registered until Close.
func (d *Deployer) Deploy(ctx context.Context, m *deployment.Manifest) error {
	for i := range m.Deployments {
		if _, err := d.DeployEntry(ctx, m.Deployments[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeployEntry builds, starts and registers one deployment and returns its index.
func (d *Deployer) DeployEntry(ctx context.Context, e deployment.ManifestEntry) (uint32, error) {
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("%s - %s: %w", deployLogPrefix, e.ID, err)
	}
	c, err := d.buildContainer(e)
	if err != nil {
		return 0, fmt.Errorf("%s - %s: %w", deployLogPrefix, e.ID, err)
	}

	params := e.DescriptorParams()
	params.Container = c
	desc, err := deployment.NewDescriptor(params)
	if err != nil {
		return 0, err
	}

	if c != nil {
		if err := c.Start(ctx); err != nil {
			return 0, fmt.Errorf("%s - %s: start: %w", deployLogPrefix, e.ID, err)
		}
	}
	index, err := d.reg.Register(ctx, e.ID, desc)
	if err != nil {
		if c != nil {
			c.Stop()
		}
		return 0, err
	}

	d.mu.Lock()
	d.deployed = append(d.deployed, deployed{name: e.ID, container: c})
	d.mu.Unlock()
	return index, nil
}

// Undeploy unregisters name and stops its container.
func (d *Deployer) Undeploy(ctx context.Context, name string) error {
	d.mu.Lock()
	pos := -1
	for i, dep := range d.deployed {
		if dep.name == name {
			pos = i
			break
		}
	}
	if pos < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%s - %s: %w", deployLogPrefix, name, deployment.ErrNotFound)
	}
	dep := d.deployed[pos]
	d.deployed = append(d.deployed[:pos], d.deployed[pos+1:]...)
	d.mu.Unlock()

	err := d.reg.Unregister(ctx, name)
	if dep.container != nil {
		dep.container.Stop()
	}
	return err
}

// Close undeploys everything in reverse order and closes the bolt store.
func (d *Deployer) Close(ctx context.Context) error {
	d.mu.Lock()
	names := make([]string, len(d.deployed))
	for i, dep := range d.deployed {
		names[i] = dep.name
	}
	d.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		if err := d.Undeploy(ctx, names[i]); err != nil {
			slog.Warn(fmt.Sprintf("%s - undeploy %s: %v", deployLogPrefix, names[i], err))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bolt != nil {
		err := d.bolt.Close()
		d.bolt = nil
		return err
	}
	return nil
}

func (d *Deployer) buildContainer(e deployment.ManifestEntry) (container.Container, error) {
	kind, _ := deployment.ParseKind(e.Kind)
	if kind == deployment.KindMessageDriven {
		return nil, nil
	}
	factory, err := d.factories.Lookup(e.Bean)
	if err != nil {
		return nil, err
	}

	switch kind {
	case deployment.KindStateless:
		return container.NewStatelessContainer(e.ID, factory, e.PoolSize), nil
	case deployment.KindStateful:
		timeout, err := e.Timeout()
		if err != nil {
			return nil, err
		}
		return container.NewStatefulContainer(e.ID, factory, timeout), nil
	case deployment.KindSingleton:
		return container.NewSingletonContainer(e.ID, factory), nil
	case deployment.KindEntity:
		gen, err := d.buildGenerator(e)
		if err != nil {
			return nil, err
		}
		return container.NewEntityContainer(container.EntityContainerParams{
			ID:        e.ID,
			Factory:   factory,
			Store:     container.NewMemoryStore(),
			Generator: gen,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
}

func (d *Deployer) buildGenerator(e deployment.ManifestEntry) (keygen.Generator, error) {
	cfg := e.Keygen
	name := e.ID + "/" + cfg.Strategy
	switch cfg.Strategy {
	case deployment.KeygenQuery:
		if d.db == nil {
			return nil, fmt.Errorf("query key generator requires DATABASE_URL")
		}
		qc := keygen.QueryConfig{Name: name, InitSQL: cfg.InitSQL, Query: cfg.Query}
		return keygen.NewManaged(name, func() keygen.Generator {
			return keygen.NewQueryGenerator(d.db, qc)
		}), nil
	case deployment.KeygenSequence:
		store, err := d.sequenceStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		sc := keygen.SequenceConfig{Name: cfg.Sequence, BatchSize: cfg.BatchSize}
		return keygen.NewManaged(name, func() keygen.Generator {
			return keygen.NewSequenceGenerator(store, sc)
		}), nil
	default:
		return nil, fmt.Errorf("entity deployments require a keygen strategy")
	}
}

// sequenceStore picks postgres when a database is configured and the entry does not ask for bolt.
func (d *Deployer) sequenceStore(kind string) (keygen.SequenceStore, error) {
	switch kind {
	case "postgres":
		if d.db == nil {
			return nil, fmt.Errorf("postgres sequence store requires DATABASE_URL")
		}
		return keygen.NewPGSequenceStore(d.db), nil
	case "":
		if d.db != nil {
			return keygen.NewPGSequenceStore(d.db), nil
		}
	}
	return d.openBolt()
}

func (d *Deployer) openBolt() (*keygen.BoltSequenceStore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bolt != nil {
		return d.bolt, nil
	}
	if d.boltPath == "" {
		return nil, fmt.Errorf("bolt sequence store requires KEYGEN_BOLT_PATH")
	}
	if dir := filepath.Dir(d.boltPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	store, err := keygen.OpenBoltSequenceStore(d.boltPath, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - Opened bolt sequence store %s", deployLogPrefix, d.boltPath))
	d.bolt = store
	return store, nil
}
