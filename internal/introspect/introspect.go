// Package introspect prints capability structs, such as device properties
// and features, as two-column tables.
package introspect

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/xlab/tablewriter"
)

// Table renders every exported field of v under title.
func Table(title string, v any) string {
	table := tablewriter.CreateTable()
	table.UTF8Box()
	table.AddTitle(title)
	rows := Rows(v)
	if len(rows) == 0 {
		table.AddRow("(none)", "")
	}
	for _, r := range rows {
		table.AddRow(r[0], r[1])
	}
	return table.Render()
}

// Rows flattens v into name/value pairs. Nested structs use dotted names,
// booleans (and Vulkan Bool32 values) print as YES or NO, zero-terminated
// byte arrays print as strings and other slices are comma-joined.
func Rows(v any) [][2]string {
	var rows [][2]string
	walk(reflect.ValueOf(v), "", &rows)
	return rows
}

var stringer = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func walk(v reflect.Value, prefix string, rows *[][2]string) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		if prefix != "" {
			*rows = append(*rows, [2]string{prefix, format(v)})
		}
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if prefix != "" {
			name = prefix + "." + name
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct && !fv.Type().Implements(stringer) {
			walk(fv, name, rows)
			continue
		}
		*rows = append(*rows, [2]string{name, format(fv)})
	}
}

func format(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.CanInterface() && v.Type().Implements(stringer) {
		if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
			return "<nil>"
		}
		return v.Interface().(fmt.Stringer).String()
	}
	switch v.Kind() {
	case reflect.Bool:
		return yesNo(v.Bool())
	case reflect.Uint32:
		if v.Type().Name() == "Bool32" {
			return yesNo(v.Uint() != 0)
		}
	case reflect.Array, reflect.Slice:
		if isByteLike(v.Type().Elem().Kind()) {
			return cString(v)
		}
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = format(v.Index(i))
		}
		return strings.Join(parts, ", ")
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return "<nil>"
		}
		return format(v.Elem())
	}
	if v.CanInterface() {
		return fmt.Sprint(v.Interface())
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func isByteLike(k reflect.Kind) bool {
	return k == reflect.Uint8 || k == reflect.Int8
}

func cString(v reflect.Value) string {
	buf := make([]byte, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		e := v.Index(i)
		var b byte
		if e.Kind() == reflect.Int8 {
			b = byte(e.Int())
		} else {
			b = byte(e.Uint())
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}
