package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns lists the "db" tags of T in field order, descending into embedded structs.
// Repositories call it once at package init to build their column lists.
//
// Usage:
//
//	columns := ExtractDBColumns[itemRow]()
//	// ["depot_id", "item_id", "item_name", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	return columnsOf(reflect.TypeOf(zero))
}

func columnsOf(t reflect.Type) []string {
	meta := metadataOf(t)
	if meta == nil {
		return nil
	}
	cols := make([]string, 0, len(meta.fields))
	for _, fi := range meta.fields {
		if fi.embedded {
			cols = append(cols, columnsOf(t.Field(fi.index).Type)...)
			continue
		}
		cols = append(cols, fi.column)
	}
	return cols
}

type fieldInfo struct {
	index    int
	column   string
	embedded bool
}

type typeMetadata struct {
	fields []fieldInfo
}

func indirectType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}

// map[reflect.Type]*typeMetadata
var typeCache sync.Map

func metadataOf(t reflect.Type) *typeMetadata {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && indirectType(field.Type).Kind() == reflect.Struct {
			meta.fields = append(meta.fields, fieldInfo{index: i, embedded: true})
			continue
		}
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" || !field.IsExported() {
			continue
		}
		meta.fields = append(meta.fields, fieldInfo{index: i, column: tag})
	}

	actual, _ := typeCache.LoadOrStore(t, meta)
	return actual.(*typeMetadata)
}

// StructToMap converts a struct to a column map using "db" tags, ready for squirrel SetMap.
func StructToMap(v any) map[string]any {
	rv := indirect(reflect.ValueOf(v))
	if metadataOf(rv.Type()) == nil {
		return nil
	}
	res := make(map[string]any)
	collect(rv, func(col string, val any) { res[col] = val })
	return res
}

// StructValues returns v's tagged field values in ExtractDBColumns order, for COPY rows.
func StructValues(v any) []any {
	rv := indirect(reflect.ValueOf(v))
	if metadataOf(rv.Type()) == nil {
		return nil
	}
	var out []any
	collect(rv, func(_ string, val any) { out = append(out, val) })
	return out
}

func indirect(rv reflect.Value) reflect.Value {
	if rv.Kind() == reflect.Ptr {
		return rv.Elem()
	}
	return rv
}

func collect(rv reflect.Value, emit func(col string, val any)) {
	for _, fi := range metadataOf(rv.Type()).fields {
		if fi.embedded {
			collect(indirect(rv.Field(fi.index)), emit)
			continue
		}
		emit(fi.column, rv.Field(fi.index).Interface())
	}
}
