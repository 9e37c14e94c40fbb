package domain

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed models/*.yaml
var defaultModels embed.FS

// Catalog is the ordered set of entity types known to the process.
type Catalog struct {
	entities    []EntityType
	byQualified map[string]EntityType
}

// NewCatalog builds a catalog from already linked entity types.
func NewCatalog(entities ...EntityType) (*Catalog, error) {
	c := &Catalog{byQualified: make(map[string]EntityType, len(entities))}
	for _, e := range entities {
		if _, exists := c.byQualified[e.QualifiedName()]; exists {
			return nil, fmt.Errorf("duplicate entity %s", e.QualifiedName())
		}
		c.byQualified[e.QualifiedName()] = e
		c.entities = append(c.entities, e)
	}
	return c, nil
}

// All returns every entity in load order.
func (c *Catalog) All() []EntityType {
	return c.entities
}

// Lookup finds an entity by qualified name, e.g. "dcim.Device".
func (c *Catalog) Lookup(qualified string) (EntityType, bool) {
	e, ok := c.byQualified[qualified]
	return e, ok
}

// ByName finds an entity by short name. Short names shared between modules
// are ambiguous and must be looked up qualified.
func (c *Catalog) ByName(name string) (EntityType, error) {
	var found EntityType
	for _, e := range c.entities {
		if e.Name() != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("entity name %q is ambiguous: %s and %s", name, found.QualifiedName(), e.QualifiedName())
		}
		found = e
	}
	if found == nil {
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return found, nil
}

// Resolve accepts either a qualified or a short entity name.
func (c *Catalog) Resolve(name string) (EntityType, error) {
	if strings.Contains(name, ".") {
		if e, ok := c.Lookup(name); ok {
			return e, nil
		}
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return c.ByName(name)
}

type moduleFile struct {
	Module string      `yaml:"module"`
	Models []modelSpec `yaml:"models"`
}

type modelSpec struct {
	Name        string      `yaml:"name"`
	Table       string      `yaml:"table"`
	GraphQLName string      `yaml:"graphql_name"`
	Fields      []fieldSpec `yaml:"fields"`
	Filters     struct {
		Fields   []string     `yaml:"fields"`
		Declared []filterSpec `yaml:"declared"`
	} `yaml:"filters"`
}

type fieldSpec struct {
	Name        string       `yaml:"name"`
	Kind        string       `yaml:"kind"`
	Column      string       `yaml:"column"`
	Nullable    bool         `yaml:"nullable"`
	Target      string       `yaml:"target"`
	RelatedName string       `yaml:"related_name"`
	Through     *throughSpec `yaml:"through"`
}

type throughSpec struct {
	Table  string `yaml:"table"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

type filterSpec struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	FieldName   string `yaml:"field_name"`
	CustomField bool   `yaml:"custom_field"`
}

// DefaultCatalog loads the embedded model definitions.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultModels, "models")
}

// LoadCatalog reads every *.yaml file under dir and links the models they
// define. Files are read in name order; targets may reference models defined
// later or in other files.
func LoadCatalog(fsys fs.FS, dir string) (*Catalog, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list model files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no model files found in %s", dir)
	}
	sort.Strings(files)

	var modules []moduleFile
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		var mf moduleFile
		if err := yaml.Unmarshal(data, &mf); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		if mf.Module == "" {
			return nil, fmt.Errorf("%s: module is required", file)
		}
		modules = append(modules, mf)
	}
	return link(modules)
}

type pendingRelation struct {
	owner *Model
	def   fieldSpec
}

// link builds the models in a first pass and attaches associations in a
// second one, once every qualified name is known.
func link(modules []moduleFile) (*Catalog, error) {
	var (
		models    []*Model
		byName    = make(map[string]*Model)
		relations []pendingRelation
	)

	for _, mf := range modules {
		for _, ms := range mf.Models {
			if ms.Name == "" {
				return nil, fmt.Errorf("module %s: model without name", mf.Module)
			}
			qualified := mf.Module + "." + ms.Name
			if _, exists := byName[qualified]; exists {
				return nil, fmt.Errorf("duplicate model %s", qualified)
			}

			fields := make([]FieldDescriptor, 0, len(ms.Fields)+1)
			hasID := false
			for _, fd := range ms.Fields {
				kind := FieldKind(fd.Kind)
				if !kind.Valid() {
					return nil, fmt.Errorf("%s.%s: unknown field kind %q", qualified, fd.Name, fd.Kind)
				}
				column := fd.Column
				if column == "" {
					column = fd.Name
					if kind == FieldKindForeignKey {
						column = fd.Name + "_id"
					}
				}
				if kind == FieldKindManyToMany {
					column = ""
				}
				if fd.Name == IDField {
					hasID = true
				}
				fields = append(fields, FieldDescriptor{
					Name:     fd.Name,
					Column:   column,
					Kind:     kind,
					Nullable: fd.Nullable,
				})
			}
			if !hasID {
				fields = append([]FieldDescriptor{{Name: IDField, Column: IDField, Kind: FieldKindBigAuto}}, fields...)
			}

			filters := FilterSetDescriptor{Fields: ms.Filters.Fields}
			for _, fspec := range ms.Filters.Declared {
				kind, err := ParseFilterKind(fspec.Kind)
				if err != nil {
					return nil, fmt.Errorf("%s filter %s: %w", qualified, fspec.Name, err)
				}
				fieldName := fspec.FieldName
				if fieldName == "" {
					fieldName = fspec.Name
				}
				filters.Declared = append(filters.Declared, FilterDescriptor{
					Name:        fspec.Name,
					Kind:        kind,
					FieldName:   fieldName,
					CustomField: fspec.CustomField,
				})
			}

			m := NewModel(mf.Module, ms.Name, ms.Table, fields, filters)
			if ms.GraphQLName != "" {
				m.SetGraphQLName(ms.GraphQLName)
			}
			models = append(models, m)
			byName[qualified] = m

			for _, fd := range ms.Fields {
				if FieldKind(fd.Kind).IsRelation() {
					relations = append(relations, pendingRelation{owner: m, def: fd})
				}
			}
		}
	}

	for _, rel := range relations {
		target, err := resolveTarget(byName, rel.owner.Module(), rel.def.Target)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", rel.owner.QualifiedName(), rel.def.Name, err)
		}
		rel.owner.SetFieldTarget(rel.def.Name, target)

		switch FieldKind(rel.def.Kind) {
		case FieldKindForeignKey:
			column := rel.def.Column
			if column == "" {
				column = rel.def.Name + "_id"
			}
			rel.owner.AddForward(Association{Name: rel.def.Name, Target: target, Column: column})
			if rel.def.RelatedName != "" {
				target.AddReverse(Association{Name: rel.def.RelatedName, Target: rel.owner, Column: column})
			}
		case FieldKindManyToMany:
			through := throughSpec{
				Table:  rel.owner.Table() + "_" + rel.def.Name,
				Source: strings.ToLower(rel.owner.Name()) + "_id",
				Target: strings.ToLower(target.Name()) + "_id",
			}
			if t := rel.def.Through; t != nil {
				if t.Table != "" {
					through.Table = t.Table
				}
				if t.Source != "" {
					through.Source = t.Source
				}
				if t.Target != "" {
					through.Target = t.Target
				}
			}
			rel.owner.AddMany(Association{
				Name:          rel.def.Name,
				Target:        target,
				ThroughTable:  through.Table,
				ThroughSource: through.Source,
				ThroughTarget: through.Target,
			})
			if rel.def.RelatedName != "" {
				target.AddMany(Association{
					Name:          rel.def.RelatedName,
					Target:        rel.owner,
					ThroughTable:  through.Table,
					ThroughSource: through.Target,
					ThroughTarget: through.Source,
				})
			}
		}
	}

	entities := make([]EntityType, len(models))
	for i, m := range models {
		entities[i] = m
	}
	return NewCatalog(entities...)
}

// resolveTarget accepts "module.Name" or a bare name in the owner's module.
func resolveTarget(byName map[string]*Model, module, target string) (*Model, error) {
	if target == "" {
		return nil, fmt.Errorf("relation without target")
	}
	qualified := target
	if !strings.Contains(target, ".") {
		qualified = module + "." + target
	}
	m, ok := byName[qualified]
	if !ok {
		return nil, fmt.Errorf("unknown target %s", target)
	}
	return m, nil
}
