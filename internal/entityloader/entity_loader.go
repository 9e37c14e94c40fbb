package entityloader

import (
	"context"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/repository"
)

const defaultWait = 5 * time.Millisecond

// Loaders holds the request-scoped batch loaders: one per entity type keyed by
// id, and one per association keyed by the source id.
type Loaders struct {
	store repository.Store
	wait  time.Duration

	mu           sync.Mutex
	entities     map[string]*dataloader.Loader
	associations map[string]*dataloader.Loader
}

// NewLoaders creates an empty set of loaders over store. Loaders are built
// lazily on first use.
func NewLoaders(store repository.Store) *Loaders {
	return &Loaders{
		store:        store,
		wait:         defaultWait,
		entities:     make(map[string]*dataloader.Loader),
		associations: make(map[string]*dataloader.Loader),
	}
}

// Key returns the loader key of an id.
func Key(id any) dataloader.Key {
	return dataloader.StringKey(repository.KeyOf(id))
}

// Entity returns the loader resolving ids of entity to records. Missing ids
// resolve to a nil record.
func (l *Loaders) Entity(entity domain.EntityType) *dataloader.Loader {
	l.mu.Lock()
	defer l.mu.Unlock()

	name := entity.QualifiedName()
	if loader, ok := l.entities[name]; ok {
		return loader
	}

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := rawKeys(keys)
		records, err := l.store.Query(entity).ByIDs(ctx, ids)
		if err != nil {
			return failAll(len(keys), err)
		}

		// ByIDs returns one slot per id, in order.
		results := make([]*dataloader.Result, len(keys))
		for i := range keys {
			var rec repository.Record
			if i < len(records) {
				rec = records[i]
			}
			results[i] = &dataloader.Result{Data: rec}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(l.wait))
	l.entities[name] = loader
	return loader
}

// Association returns the loader resolving source ids of entity to the
// records reached through the named association.
func (l *Loaders) Association(entity domain.EntityType, association string) *dataloader.Loader {
	l.mu.Lock()
	defer l.mu.Unlock()

	name := entity.QualifiedName() + "." + association
	if loader, ok := l.associations[name]; ok {
		return loader
	}

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		related, err := l.store.Related(ctx, entity, association, rawKeys(keys))
		if err != nil {
			return failAll(len(keys), err)
		}
		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			results[i] = &dataloader.Result{Data: related[k.String()]}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(l.wait))
	l.associations[name] = loader
	return loader
}

// LoadEntity loads one record through the entity loader.
func (l *Loaders) LoadEntity(ctx context.Context, entity domain.EntityType, id any) (repository.Record, error) {
	v, err := l.Entity(entity).Load(ctx, Key(id))()
	if err != nil {
		return nil, err
	}
	rec, _ := v.(repository.Record)
	return rec, nil
}

func rawKeys(keys dataloader.Keys) []any {
	ids := make([]any, len(keys))
	for i, k := range keys {
		ids[i] = k.String()
	}
	return ids
}

func failAll(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}
