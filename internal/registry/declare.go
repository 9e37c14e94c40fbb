package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/netgql/internal/customfield"
	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
)

// Declare registers the filter stub of entity and the relationship edges its
// filter set implies.
//
// Fields are added first come first served: id, then the filter set's model
// fields typed from their storage descriptors, then declared filters, then
// custom fields. Relationship fields get an extra ID field under their
// <name>_id alias: site gives site_id, tags gives tag_id, devices gives
// device_id.
func Declare(ctx context.Context, reg *Registry, entity domain.EntityType, source customfield.Source) (Handle, error) {
	d := declaration{reg: reg, entity: entity, seen: make(map[string]bool)}
	d.add(Field{Name: domain.IDField, Type: filter.ID})

	for _, name := range entity.Filters().Fields {
		if d.seen[name] {
			continue
		}
		if fd, ok := entity.Field(name); ok {
			c := filter.Classify(fd)
			if err := d.classified(name, c, fd.Kind == domain.FieldKindManyToMany); err != nil {
				return NoHandle, err
			}
			continue
		}
		if a, ok := domain.FindAssociation(entity, name); ok {
			if err := d.classified(name, filter.ClassifyAssociation(a), manyValued(entity, a.Name)); err != nil {
				return NoHandle, err
			}
		}
	}

	for _, f := range entity.Filters().Declared {
		if d.seen[f.Name] {
			continue
		}
		c := filter.ClassifyFilter(f)
		switch c.Outcome {
		case filter.OutcomeUnknown:
			return NoHandle, &UnknownFilterError{Entity: entity.QualifiedName(), Filter: f.Name, Kind: f.Kind}
		case filter.OutcomeScalar:
			d.add(Field{Name: f.Name, Type: c.Type, CustomField: f.CustomField})
		}
	}

	remaps, err := d.customFields(ctx, source)
	if err != nil {
		return NoHandle, err
	}

	h, err := reg.RegisterFilterStub(entity, d.fields, WithFieldMap(remaps))
	if err != nil {
		return NoHandle, fmt.Errorf("failed to register filter for %s: %w", entity.QualifiedName(), err)
	}
	return h, nil
}

// DeclareCatalog declares every entity of catalog and finalizes reg.
func DeclareCatalog(ctx context.Context, reg *Registry, catalog *domain.Catalog, source customfield.Source) (map[string]*FilterType, error) {
	for _, entity := range catalog.All() {
		if _, err := Declare(ctx, reg, entity, source); err != nil {
			return nil, err
		}
	}
	return reg.Finalize()
}

type declaration struct {
	reg    *Registry
	entity domain.EntityType
	fields []Field
	seen   map[string]bool
}

func (d *declaration) add(f Field) bool {
	if d.seen[f.Name] {
		return false
	}
	d.seen[f.Name] = true
	d.fields = append(d.fields, f)
	return true
}

func (d *declaration) classified(name string, c filter.Classification, manyValued bool) error {
	switch c.Outcome {
	case filter.OutcomeScalar:
		d.add(Field{Name: name, Type: c.Type})
	case filter.OutcomeDeferred:
		if err := d.reg.RegisterRelationship(d.entity, name, c.Target); err != nil {
			return fmt.Errorf("failed to register relationship %s.%s: %w", d.entity.QualifiedName(), name, err)
		}
		// The relationship field itself is filled in by Finalize.
		d.seen[name] = true
		d.add(Field{Name: filter.IDAlias(name, manyValued), Type: filter.ID})
	}
	return nil
}

func manyValued(entity domain.EntityType, name string) bool {
	for _, list := range [][]domain.Association{entity.ListManyAssociations(), entity.ListReverseAssociations()} {
		for _, a := range list {
			if a.Name == name {
				return true
			}
		}
	}
	return false
}

// customFields adds one field per custom field of the entity and returns the
// remap table. Entities without custom field storage get none.
func (d *declaration) customFields(ctx context.Context, source customfield.Source) ([]filter.Remap, error) {
	if source == nil {
		return nil, nil
	}
	if _, ok := d.entity.Field(customfield.DataPath); !ok {
		return nil, nil
	}

	fields, err := source.ForEntity(ctx, d.entity.QualifiedName())
	if errors.Is(err, customfield.ErrStorageNotReady) {
		log.Printf("[REGISTRY] custom fields unavailable for %s: %v", d.entity.QualifiedName(), err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load custom fields for %s: %w", d.entity.QualifiedName(), err)
	}

	var remaps []filter.Remap
	for _, cf := range fields {
		if strings.Contains(cf.Name, "__") {
			continue
		}
		if t, ok := cf.FilterType(); ok {
			d.add(Field{Name: cf.FilterName(), Type: t, CustomField: true})
		}
		remaps = append(remaps, filter.Remap{From: cf.FilterName(), To: cf.StoragePath()})
	}
	return remaps, nil
}
