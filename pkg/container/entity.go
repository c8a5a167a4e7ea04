package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/keygen"
)

const entityLogPrefix = "container:entity"

// FindByPrimaryKey is the finder every entity home supports.
const FindByPrimaryKey = "findByPrimaryKey"

// EntityBean is a bean whose state is persisted in an EntityStore.
type EntityBean interface {
	Bean
	Load(row keygen.Row) error
	Snapshot() keygen.Row
}

// EntityStore persists entity rows by primary key.
type EntityStore interface {
	// Load returns the row for pk, or ErrObjectNotFound.
	Load(ctx context.Context, pk string) (keygen.Row, error)
	Save(ctx context.Context, pk string, row keygen.Row) error
	Delete(ctx context.Context, pk string) error
	// Find runs a finder method and returns matching primary keys.
	Find(ctx context.Context, method string, args commsutil.Args) ([]string, error)
}

// EntityContainerParams holds dependencies for NewEntityContainer.
type EntityContainerParams struct {
	ID        string
	Factory   Factory
	Store     EntityStore
	Generator keygen.Generator
	// Cache is the transaction write-behind cache. Nil creates a private one.
	Cache *keygen.TxCache
}

// entityInstance flags are guarded by mu. A discarded instance is reloaded
// from the store on next use; a removed one reports ErrObjectNotFound.
type entityInstance struct {
	mu        sync.Mutex
	bean      EntityBean
	discarded bool
	removed   bool
}

// EntityContainer loads persistent instances on demand.
type EntityContainer struct {
	id        string
	factory   Factory
	store     EntityStore
	generator keygen.Generator
	cache     *keygen.TxCache

	mu        sync.Mutex
	instances map[string]*entityInstance
	// evictions counts instances dropped from the map; a load that races
	// an eviction rereads the store.
	evictions uint64
}

// NewEntityContainer creates an EntityContainer.
func NewEntityContainer(p EntityContainerParams) *EntityContainer {
	cache := p.Cache
	if cache == nil {
		cache = keygen.NewTxCache()
	}
	return &EntityContainer{
		id:        p.ID,
		factory:   p.Factory,
		store:     p.Store,
		generator: p.Generator,
		cache:     cache,
		instances: make(map[string]*entityInstance),
	}
}

// Start starts the key generator.
func (c *EntityContainer) Start(ctx context.Context) error {
	if c.generator == nil {
		return nil
	}
	return c.generator.Start(ctx)
}

// Stop stops the key generator and evicts loaded instances.
func (c *EntityContainer) Stop() {
	if c.generator != nil {
		c.generator.Stop()
	}
	c.mu.Lock()
	c.instances = make(map[string]*entityInstance)
	c.evictions++
	c.mu.Unlock()
}

// Create allocates a key, initializes a new instance and persists it.
// Key generation failures are returned unchanged (*keygen.KeyGenerationError).
func (c *EntityContainer) Create(ctx context.Context, args commsutil.Args) (string, error) {
	if c.generator == nil {
		return "", &SystemError{Cause: fmt.Errorf("%s - %s has no key generator", entityLogPrefix, c.id)}
	}
	bean, err := c.newBean()
	if err != nil {
		return "", err
	}
	if err := create(ctx, bean, args); err != nil {
		return "", err
	}
	row := bean.Snapshot()
	key, err := c.generator.NextKey(ctx, row)
	if err != nil {
		return "", err
	}
	pk := key.String()
	c.generator.UpdateCache(c.cache, keygen.TxIDFromContext(ctx), key, row)
	if err := c.store.Save(ctx, pk, row); err != nil {
		return "", &SystemError{Cause: fmt.Errorf("%s - %s/%s: save: %w", entityLogPrefix, c.id, pk, err)}
	}

	c.mu.Lock()
	c.instances[pk] = &entityInstance{bean: bean}
	c.mu.Unlock()
	slog.Debug(fmt.Sprintf("%s - %s created %s", entityLogPrefix, c.id, pk))
	return pk, nil
}

// Find runs a finder. findByPrimaryKey checks that its single argument exists.
func (c *EntityContainer) Find(ctx context.Context, method string, args commsutil.Args) ([]string, error) {
	if method == FindByPrimaryKey {
		var pk string
		if err := args.Decode(0, &pk); err != nil {
			return nil, &SystemError{Cause: err}
		}
		if _, err := c.load(ctx, pk); err != nil {
			return nil, err
		}
		return []string{pk}, nil
	}
	keys, err := c.store.Find(ctx, method, args)
	if err != nil && !IsApplicationError(err) {
		return nil, &SystemError{Cause: err}
	}
	return keys, err
}

// Invoke calls method on the instance for pk and persists its new state.
// A system failure discards the instance; calls queued behind it reload the row.
func (c *EntityContainer) Invoke(ctx context.Context, pk, method string, args commsutil.Args) (interface{}, error) {
	inst, err := c.acquire(ctx, pk)
	if err != nil {
		return nil, err
	}
	defer inst.mu.Unlock()

	result, err := invoke(ctx, inst.bean, method, args)
	if err == nil {
		if saveErr := c.store.Save(ctx, pk, inst.bean.Snapshot()); saveErr != nil {
			err = &SystemError{Cause: fmt.Errorf("%s - %s/%s: save: %w", entityLogPrefix, c.id, pk, saveErr)}
		}
	}
	if IsSystemFailure(err) {
		slog.Warn(fmt.Sprintf("%s - %s/%s discarded after system failure in %s: %v", entityLogPrefix, c.id, pk, method, err))
		inst.discarded = true
		c.evict(pk, inst)
		return nil, err
	}
	return result, err
}

// Remove deletes the instance and its persistent row.
func (c *EntityContainer) Remove(ctx context.Context, pk string) error {
	inst, err := c.acquire(ctx, pk)
	if err != nil {
		return err
	}
	defer inst.mu.Unlock()
	if err := remove(ctx, inst.bean); IsApplicationError(err) {
		return err
	}
	inst.removed = true
	err = c.store.Delete(ctx, pk)
	c.evict(pk, inst)
	if err != nil {
		return &SystemError{Cause: fmt.Errorf("%s - %s/%s: delete: %w", entityLogPrefix, c.id, pk, err)}
	}
	return nil
}

// Discard evicts the loaded instance for pk; its row is reloaded on next use.
func (c *EntityContainer) Discard(pk string) {
	c.mu.Lock()
	inst, ok := c.instances[pk]
	c.mu.Unlock()
	if !ok {
		return
	}
	inst.mu.Lock()
	inst.discarded = true
	c.evict(pk, inst)
	inst.mu.Unlock()
}

// Commit drops txID's cached rows.
func (c *EntityContainer) Commit(txID string) { c.cache.Commit(txID) }

// Rollback discards txID's cached rows.
func (c *EntityContainer) Rollback(txID string) { c.cache.Rollback(txID) }

// Loaded returns the number of instances held in memory.
func (c *EntityContainer) Loaded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}

// acquire returns the live instance for pk with its lock held.
func (c *EntityContainer) acquire(ctx context.Context, pk string) (*entityInstance, error) {
	for {
		inst, err := c.load(ctx, pk)
		if err != nil {
			return nil, err
		}
		inst.mu.Lock()
		switch {
		case inst.removed:
			inst.mu.Unlock()
			return nil, fmt.Errorf("%s - %s/%s: %w", entityLogPrefix, c.id, pk, ErrObjectNotFound)
		case inst.discarded:
			inst.mu.Unlock()
			continue
		}
		return inst, nil
	}
}

// evict must be called with inst.mu held.
func (c *EntityContainer) evict(pk string, inst *entityInstance) {
	c.mu.Lock()
	if c.instances[pk] == inst {
		delete(c.instances, pk)
	}
	c.evictions++
	c.mu.Unlock()
}

func (c *EntityContainer) load(ctx context.Context, pk string) (*entityInstance, error) {
	for {
		c.mu.Lock()
		inst, ok := c.instances[pk]
		epoch := c.evictions
		c.mu.Unlock()
		if ok {
			return inst, nil
		}

		row, err := c.cachedRow(ctx, pk)
		if err != nil {
			return nil, err
		}
		bean, err := c.newBean()
		if err != nil {
			return nil, err
		}
		if err := bean.Load(row); err != nil {
			return nil, &SystemError{Cause: fmt.Errorf("%s - %s/%s: load: %w", entityLogPrefix, c.id, pk, err)}
		}

		c.mu.Lock()
		if existing, ok := c.instances[pk]; ok {
			c.mu.Unlock()
			return existing, nil
		}
		if c.evictions != epoch {
			c.mu.Unlock()
			continue
		}
		inst = &entityInstance{bean: bean}
		c.instances[pk] = inst
		c.mu.Unlock()
		return inst, nil
	}
}

// cachedRow prefers the transaction's write-behind cache over the store.
func (c *EntityContainer) cachedRow(ctx context.Context, pk string) (keygen.Row, error) {
	if txID := keygen.TxIDFromContext(ctx); txID != "" {
		if key, err := keygen.ParseKey(pk); err == nil {
			if row, ok := c.cache.Get(txID, key); ok {
				return row, nil
			}
		}
	}
	row, err := c.store.Load(ctx, pk)
	if err != nil {
		if IsSystemFailure(err) {
			return nil, &SystemError{Cause: err}
		}
		return nil, fmt.Errorf("%s - %s/%s: %w", entityLogPrefix, c.id, pk, err)
	}
	return row, nil
}

func (c *EntityContainer) newBean() (EntityBean, error) {
	built, err := build(c.factory)
	if err != nil {
		return nil, err
	}
	bean, ok := built.(EntityBean)
	if !ok {
		return nil, &SystemError{Cause: fmt.Errorf("%s - %s factory does not build an EntityBean", entityLogPrefix, c.id)}
	}
	return bean, nil
}
