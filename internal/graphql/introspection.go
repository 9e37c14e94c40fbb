package graphql

import (
	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/vektah/gqlparser/v2/ast"
)

func (x *execution) introspectSchema(sel ast.SelectionSet) any {
	s := introspection.WrapSchema(x.exec.schema.AST)
	out := newObject()
	for _, f := range x.collectFields(sel, "__Schema") {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__Schema")
		case "description":
			out.set(f.Alias, nil)
		case "queryType":
			out.set(f.Alias, x.introspectType(s.QueryType(), f.SelectionSet))
		case "mutationType", "subscriptionType":
			out.set(f.Alias, nil)
		case "types":
			types := s.Types()
			list := make([]any, len(types))
			for i := range types {
				list[i] = x.introspectType(&types[i], f.SelectionSet)
			}
			out.set(f.Alias, list)
		case "directives":
			directives := s.Directives()
			list := make([]any, len(directives))
			for i, d := range directives {
				list[i] = x.introspectDirective(d, f.SelectionSet)
			}
			out.set(f.Alias, list)
		}
	}
	return out
}

func (x *execution) introspectNamedType(name string, sel ast.SelectionSet) any {
	def := x.exec.schema.AST.Types[name]
	if def == nil {
		return nil
	}
	return x.introspectType(introspection.WrapTypeFromDef(x.exec.schema.AST, def), sel)
}

func (x *execution) introspectType(t *introspection.Type, sel ast.SelectionSet) any {
	if t == nil {
		return nil
	}
	out := newObject()
	for _, f := range x.collectFields(sel, "__Type") {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__Type")
		case "kind":
			out.set(f.Alias, t.Kind())
		case "name":
			out.set(f.Alias, t.Name())
		case "description":
			out.set(f.Alias, t.Description())
		case "specifiedByURL":
			out.set(f.Alias, nil)
		case "fields":
			if t.Kind() != "OBJECT" && t.Kind() != "INTERFACE" {
				out.set(f.Alias, nil)
				continue
			}
			fields := t.Fields(includeDeprecated(f, x.vars))
			list := make([]any, len(fields))
			for i := range fields {
				list[i] = x.introspectField(&fields[i], f.SelectionSet)
			}
			out.set(f.Alias, list)
		case "inputFields":
			if t.Kind() != "INPUT_OBJECT" {
				out.set(f.Alias, nil)
				continue
			}
			out.set(f.Alias, x.introspectInputValues(t.InputFields(), f.SelectionSet))
		case "interfaces", "possibleTypes":
			var types []introspection.Type
			if f.Name == "interfaces" {
				types = t.Interfaces()
			} else {
				types = t.PossibleTypes()
			}
			if types == nil {
				out.set(f.Alias, nil)
				continue
			}
			list := make([]any, len(types))
			for i := range types {
				list[i] = x.introspectType(&types[i], f.SelectionSet)
			}
			out.set(f.Alias, list)
		case "enumValues":
			if t.Kind() != "ENUM" {
				out.set(f.Alias, nil)
				continue
			}
			values := t.EnumValues(includeDeprecated(f, x.vars))
			list := make([]any, len(values))
			for i := range values {
				list[i] = x.introspectEnumValue(&values[i], f.SelectionSet)
			}
			out.set(f.Alias, list)
		case "ofType":
			out.set(f.Alias, x.introspectType(t.OfType(), f.SelectionSet))
		}
	}
	return out
}

func (x *execution) introspectField(field *introspection.Field, sel ast.SelectionSet) any {
	out := newObject()
	for _, f := range x.collectFields(sel, "__Field") {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__Field")
		case "name":
			out.set(f.Alias, field.Name)
		case "description":
			out.set(f.Alias, field.Description())
		case "args":
			out.set(f.Alias, x.introspectInputValues(field.Args, f.SelectionSet))
		case "type":
			out.set(f.Alias, x.introspectType(field.Type, f.SelectionSet))
		case "isDeprecated":
			out.set(f.Alias, field.IsDeprecated())
		case "deprecationReason":
			out.set(f.Alias, field.DeprecationReason())
		}
	}
	return out
}

func (x *execution) introspectInputValues(values []introspection.InputValue, sel ast.SelectionSet) []any {
	list := make([]any, len(values))
	for i := range values {
		v := &values[i]
		out := newObject()
		for _, f := range x.collectFields(sel, "__InputValue") {
			switch f.Name {
			case "__typename":
				out.set(f.Alias, "__InputValue")
			case "name":
				out.set(f.Alias, v.Name)
			case "description":
				out.set(f.Alias, v.Description())
			case "type":
				out.set(f.Alias, x.introspectType(v.Type, f.SelectionSet))
			case "defaultValue":
				out.set(f.Alias, v.DefaultValue)
			case "isDeprecated":
				out.set(f.Alias, false)
			case "deprecationReason":
				out.set(f.Alias, nil)
			}
		}
		list[i] = out
	}
	return list
}

func (x *execution) introspectEnumValue(v *introspection.EnumValue, sel ast.SelectionSet) any {
	out := newObject()
	for _, f := range x.collectFields(sel, "__EnumValue") {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__EnumValue")
		case "name":
			out.set(f.Alias, v.Name)
		case "description":
			out.set(f.Alias, v.Description())
		case "isDeprecated":
			out.set(f.Alias, v.IsDeprecated())
		case "deprecationReason":
			out.set(f.Alias, v.DeprecationReason())
		}
	}
	return out
}

func (x *execution) introspectDirective(d introspection.Directive, sel ast.SelectionSet) any {
	out := newObject()
	for _, f := range x.collectFields(sel, "__Directive") {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__Directive")
		case "name":
			out.set(f.Alias, d.Name)
		case "description":
			out.set(f.Alias, nil)
		case "locations":
			out.set(f.Alias, d.Locations)
		case "args":
			out.set(f.Alias, x.introspectInputValues(d.Args, f.SelectionSet))
		case "isRepeatable":
			out.set(f.Alias, d.IsRepeatable)
		}
	}
	return out
}

func includeDeprecated(f *ast.Field, vars map[string]any) bool {
	v, _ := f.ArgumentMap(vars)["includeDeprecated"].(bool)
	return v
}
