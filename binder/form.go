package binder

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
)

// DefaultMaxMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const DefaultMaxMemory = 10 << 20

// Form binds urlencoded and multipart fields into string fields tagged
// `form:"name"`. Other media types are ErrNotApplicable.
func Form() Func {
	return func(r *http.Request, v any) error {
		mt, err := mediaType(r)
		if err != nil {
			return err
		}
		switch mt {
		case "application/x-www-form-urlencoded":
			if err := r.ParseForm(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidForm, err)
			}
		case "multipart/form-data":
			if err := parseMultipart(r); err != nil {
				return err
			}
		default:
			return ErrNotApplicable
		}

		return eachTagged(v, "form", func(field reflect.Value, name string) error {
			if field.Kind() != reflect.String {
				return fmt.Errorf("%w: field %q must be a string", ErrInvalidForm, name)
			}
			if vals, ok := r.Form[name]; ok && len(vals) > 0 {
				field.SetString(vals[0])
			}
			return nil
		})
	}
}

func parseMultipart(r *http.Request) error {
	if r.MultipartForm != nil {
		return nil
	}
	if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", ErrFileTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	return nil
}

// eachTagged calls fn for every settable field of the struct behind v that
// carries tag.
func eachTagged(v any, tag string, fn func(field reflect.Value, name string) error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a non-nil pointer to struct", ErrInvalidForm)
	}
	rv = rv.Elem()
	rt := rv.Type()
	for i := range rv.NumField() {
		name := rt.Field(i).Tag.Get(tag)
		if name == "" || name == "-" || !rv.Field(i).CanSet() {
			continue
		}
		if err := fn(rv.Field(i), name); err != nil {
			return err
		}
	}
	return nil
}
