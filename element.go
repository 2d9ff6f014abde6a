package asyncarray

import (
	"reflect"
	"sync"
)

var copyableCache sync.Map // reflect.Type -> error (nil when copyable)

// checkElem panics unless T is trivially copyable.
func checkElem[T any]() {
	t := reflect.TypeFor[T]()
	if v, ok := copyableCache.Load(t); ok {
		if v != nil {
			panic(v)
		}
		return
	}
	err := triviallyCopyable(t, t, "")
	if err == nil {
		copyableCache.Store(t, nil)
		return
	}
	copyableCache.Store(t, err)
	panic(err)
}

// triviallyCopyable reports an error if t (a component of root) holds
// anything but plain numeric data.
func triviallyCopyable(root, t reflect.Type, path string) *ErrNotTriviallyCopyable {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return triviallyCopyable(root, t.Elem(), join(path, "elem"))
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if err := triviallyCopyable(root, f.Type, join(path, "field "+f.Name)); err != nil {
				return err
			}
		}
		return nil
	default:
		return &ErrNotTriviallyCopyable{Type: root, Path: join(path, t.Kind().String())}
	}
}

func join(path, part string) string {
	if path == "" {
		return part
	}
	return path + "." + part
}
