package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gql "github.com/99designs/gqlgen/graphql"
	"github.com/graph-gophers/dataloader"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/entityloader"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/middleware"
	"github.com/rpattn/netgql/internal/repository"
)

// DefaultMaxAliases is the alias limit when none is configured.
const DefaultMaxAliases = 10

// Request is a GraphQL request as sent over HTTP.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// FieldInterceptor wraps field resolution, e.g. to time it.
type FieldInterceptor interface {
	InterceptField(ctx context.Context, next gql.Resolver) (any, error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxAliases limits the number of aliased fields per document. Zero or
// less disables the limit.
func WithMaxAliases(n int) Option {
	return func(e *Executor) { e.maxAliases = n }
}

// WithFieldInterceptor adds an interceptor around root and association
// fields.
func WithFieldInterceptor(i FieldInterceptor) Option {
	return func(e *Executor) { e.interceptors = append(e.interceptors, i) }
}

// Executor runs queries against a store.
type Executor struct {
	schema       *Schema
	store        repository.Store
	resolver     *filter.Resolver
	maxAliases   int
	interceptors []FieldInterceptor
}

func NewExecutor(schema *Schema, store repository.Store, resolver *filter.Resolver, opts ...Option) *Executor {
	e := &Executor{
		schema:     schema,
		store:      store,
		resolver:   resolver,
		maxAliases: DefaultMaxAliases,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the executor's schema.
func (e *Executor) Schema() *Schema {
	return e.schema
}

// Execute parses, validates and runs req. Errors are reported in the
// response, never returned.
func (e *Executor) Execute(ctx context.Context, req Request) *gql.Response {
	doc, errs := gqlparser.LoadQuery(e.schema.AST, req.Query)
	if len(errs) > 0 {
		return &gql.Response{Errors: errs}
	}
	if e.maxAliases > 0 {
		if n := countAliases(doc); n > e.maxAliases {
			return errorResponse(gqlerror.Errorf("%d aliases found, allowed maximum is %d", n, e.maxAliases))
		}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		if req.OperationName == "" {
			return errorResponse(gqlerror.Errorf("operation name is required when the document has several operations"))
		}
		return errorResponse(gqlerror.Errorf("operation %s not found", req.OperationName))
	}
	if op.Operation != ast.Query {
		return errorResponse(gqlerror.Errorf("only query operations are supported, got %s", op.Operation))
	}

	vars, err := validator.VariableValues(e.schema.AST, op, req.Variables)
	if err != nil {
		var gerr *gqlerror.Error
		if !errors.As(err, &gerr) {
			gerr = gqlerror.Errorf("%s", err)
		}
		return errorResponse(gerr)
	}

	loaders := middleware.LoadersFromContext(ctx)
	if loaders == nil {
		loaders = entityloader.NewLoaders(e.store)
	}

	x := &execution{exec: e, doc: doc, vars: vars, loaders: loaders}
	data, fieldErrs := x.executeRoot(ctx, op)

	resp := &gql.Response{Errors: fieldErrs}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			resp.Errors = append(resp.Errors, gqlerror.Errorf("failed to encode response: %v", err))
			return resp
		}
		resp.Data = raw
	} else {
		resp.Data = json.RawMessage("null")
	}
	return resp
}

func errorResponse(err *gqlerror.Error) *gql.Response {
	return &gql.Response{Errors: gqlerror.List{err}}
}

// countAliases counts fields whose response key differs from the field name.
func countAliases(doc *ast.QueryDocument) int {
	n := 0
	var walk func(ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if s.Alias != "" && s.Alias != s.Name {
					n++
				}
				walk(s.SelectionSet)
			case *ast.InlineFragment:
				walk(s.SelectionSet)
			}
		}
	}
	for _, op := range doc.Operations {
		walk(op.SelectionSet)
	}
	for _, frag := range doc.Fragments {
		walk(frag.SelectionSet)
	}
	return n
}

// execution is the state of one request.
type execution struct {
	exec    *Executor
	doc     *ast.QueryDocument
	vars    map[string]any
	loaders *entityloader.Loaders
}

func (x *execution) executeRoot(ctx context.Context, op *ast.OperationDefinition) (*object, gqlerror.List) {
	fields := x.collectFields(op.SelectionSet, "Query")
	results := make([]any, len(fields))
	errs := make([]error, len(fields))

	var g errgroup.Group
	for i, f := range fields {
		g.Go(func() error {
			args := f.ArgumentMap(x.vars)
			fctx := fieldContext(ctx, "Query", f, args)
			results[i], errs[i] = x.intercept(fctx, func(ctx context.Context) (any, error) {
				return x.resolveRoot(ctx, f, args)
			})
			return nil
		})
	}
	_ = g.Wait()

	data := newObject()
	var list gqlerror.List
	null := false
	for i, f := range fields {
		if errs[i] != nil {
			list = append(list, fieldError(errs[i], f.Alias))
			if f.Definition != nil && f.Definition.Type.NonNull {
				null = true
			}
			data.set(f.Alias, nil)
			continue
		}
		data.set(f.Alias, results[i])
	}
	if null {
		return nil, list
	}
	return data, list
}

func fieldError(err error, alias string) *gqlerror.Error {
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		if len(gerr.Path) == 0 {
			gerr.Path = ast.Path{ast.PathName(alias)}
		}
		return gerr
	}
	return &gqlerror.Error{Message: err.Error(), Path: ast.Path{ast.PathName(alias)}, Err: err}
}

func fieldContext(ctx context.Context, object string, f *ast.Field, args map[string]any) context.Context {
	return gql.WithFieldContext(ctx, &gql.FieldContext{
		Object: object,
		Field:  gql.CollectedField{Field: f, Selections: f.SelectionSet},
		Args:   args,
	})
}

func (x *execution) intercept(ctx context.Context, next gql.Resolver) (any, error) {
	for i := len(x.exec.interceptors) - 1; i >= 0; i-- {
		inner, interceptor := next, x.exec.interceptors[i]
		next = func(ctx context.Context) (any, error) {
			return interceptor.InterceptField(ctx, inner)
		}
	}
	return next(ctx)
}

func (x *execution) resolveRoot(ctx context.Context, f *ast.Field, args map[string]any) (any, error) {
	switch f.Name {
	case "__typename":
		return "Query", nil
	case "__schema":
		return x.introspectSchema(f.SelectionSet), nil
	case "__type":
		name, _ := args["name"].(string)
		return x.introspectNamedType(name, f.SelectionSet), nil
	}

	root, ok := x.exec.schema.roots[f.Name]
	if !ok {
		return nil, fmt.Errorf("unknown query field %s", f.Name)
	}

	switch root.kind {
	case rootGet:
		rec, err := x.loaders.LoadEntity(ctx, root.entity, args["id"])
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		objs, err := x.resolveObjects(ctx, root.entity, []repository.Record{rec}, f.SelectionSet)
		if err != nil {
			return nil, err
		}
		return objs[0], nil

	default:
		records, err := x.list(ctx, root.entity, args["filters"])
		if err != nil {
			return nil, err
		}
		objs, err := x.resolveObjects(ctx, root.entity, records, f.SelectionSet)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(objs))
		for i, o := range objs {
			out[i] = o
		}
		return out, nil
	}
}

// list runs the list resolver for entity with the raw filters argument.
func (x *execution) list(ctx context.Context, entity domain.EntityType, filters any) ([]repository.Record, error) {
	var in *filter.Input
	if filters != nil {
		var err error
		in, err = x.exec.schema.CoerceFilter(entity, filters)
		if err != nil {
			return nil, err
		}
	}
	q, err := x.exec.resolver.Resolve(x.exec.store.Query(entity), in)
	if err != nil {
		return nil, err
	}
	eq, ok := q.(repository.EntityQuery)
	if !ok {
		return nil, fmt.Errorf("store returned %T, not an entity query", q)
	}
	return eq.All(ctx)
}

// resolveObjects resolves sel for every record at once, so association
// fields are batched per level.
func (x *execution) resolveObjects(ctx context.Context, entity domain.EntityType, records []repository.Record, sel ast.SelectionSet) ([]*object, error) {
	typeName := entity.GraphQLName()
	fields := x.collectFields(sel, typeName)
	defs := x.exec.schema.fields[typeName]

	out := make([]*object, len(records))
	for i := range out {
		out[i] = newObject()
	}

	for _, f := range fields {
		if f.Name == "__typename" {
			for _, o := range out {
				o.set(f.Alias, typeName)
			}
			continue
		}
		def, ok := defs[f.Name]
		if !ok {
			return nil, fmt.Errorf("%s has no field %s", typeName, f.Name)
		}

		if def.kind == scalarField {
			for i, r := range records {
				out[i].set(f.Alias, outputValue(def.field, r[def.field.Column]))
			}
			continue
		}

		res, err := x.intercept(fieldContext(ctx, typeName, f, nil), func(ctx context.Context) (any, error) {
			if def.kind == forwardField {
				return x.resolveForward(ctx, def.assoc, records, f.SelectionSet)
			}
			return x.resolveList(ctx, entity, def.assoc, records, f.SelectionSet)
		})
		if err != nil {
			return nil, err
		}
		values := res.([]any)
		for i := range out {
			out[i].set(f.Alias, values[i])
		}
	}
	return out, nil
}

func (x *execution) resolveForward(ctx context.Context, a domain.Association, records []repository.Record, sel ast.SelectionSet) ([]any, error) {
	loader := x.loaders.Entity(a.Target)
	thunks := make([]dataloader.Thunk, len(records))
	for i, r := range records {
		if fk := r[a.Column]; fk != nil {
			thunks[i] = loader.Load(ctx, entityloader.Key(fk))
		}
	}

	var targets []repository.Record
	var index []int
	for i, thunk := range thunks {
		if thunk == nil {
			continue
		}
		v, err := thunk()
		if err != nil {
			return nil, err
		}
		if rec, _ := v.(repository.Record); rec != nil {
			targets = append(targets, rec)
			index = append(index, i)
		}
	}

	objs, err := x.resolveObjects(ctx, a.Target, targets, sel)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(records))
	for j, i := range index {
		out[i] = objs[j]
	}
	return out, nil
}

func (x *execution) resolveList(ctx context.Context, entity domain.EntityType, a domain.Association, records []repository.Record, sel ast.SelectionSet) ([]any, error) {
	loader := x.loaders.Association(entity, a.Name)
	thunks := make([]dataloader.Thunk, len(records))
	for i, r := range records {
		thunks[i] = loader.Load(ctx, entityloader.Key(r.ID()))
	}

	var flat []repository.Record
	counts := make([]int, len(records))
	for i, thunk := range thunks {
		v, err := thunk()
		if err != nil {
			return nil, err
		}
		related, _ := v.([]repository.Record)
		counts[i] = len(related)
		flat = append(flat, related...)
	}

	objs, err := x.resolveObjects(ctx, a.Target, flat, sel)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(records))
	next := 0
	for i, n := range counts {
		items := make([]any, n)
		for j := range items {
			items[j] = objs[next]
			next++
		}
		out[i] = items
	}
	return out, nil
}

// collectFields flattens fragments applying to typeName and merges fields
// sharing a response key.
func (x *execution) collectFields(set ast.SelectionSet, typeName string) []*ast.Field {
	var fields []*ast.Field
	byAlias := make(map[string]int)

	var walk func(ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if !x.included(s.Directives) {
					continue
				}
				if i, ok := byAlias[s.Alias]; ok {
					merged := *fields[i]
					merged.SelectionSet = append(append(ast.SelectionSet{}, merged.SelectionSet...), s.SelectionSet...)
					fields[i] = &merged
					continue
				}
				byAlias[s.Alias] = len(fields)
				fields = append(fields, s)

			case *ast.InlineFragment:
				if !x.included(s.Directives) {
					continue
				}
				if s.TypeCondition == "" || s.TypeCondition == typeName {
					walk(s.SelectionSet)
				}

			case *ast.FragmentSpread:
				if !x.included(s.Directives) {
					continue
				}
				def := s.Definition
				if def == nil {
					def = x.doc.Fragments.ForName(s.Name)
				}
				if def != nil && def.TypeCondition == typeName {
					walk(def.SelectionSet)
				}
			}
		}
	}
	walk(set)
	return fields
}

func (x *execution) included(directives ast.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(x.vars)["if"].(bool); skip {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if include, _ := d.ArgumentMap(x.vars)["if"].(bool); !include {
			return false
		}
	}
	return true
}
