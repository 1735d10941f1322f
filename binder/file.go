package binder

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/textproto"
	"path/filepath"
	"reflect"
	"strings"
)

// FileUpload is one uploaded file read fully into memory.
type FileUpload struct {
	Filename string
	Size     int64
	Header   textproto.MIMEHeader
	Content  []byte
}

// ContentType prefers the part header and falls back to the extension.
func (f *FileUpload) ContentType() string {
	if ct := f.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		return mt
	}
	return mime.TypeByExtension(filepath.Ext(f.Filename))
}

// Ext is the lower-cased file extension including the dot.
func (f *FileUpload) Ext() string {
	return strings.ToLower(filepath.Ext(f.Filename))
}

var fileUploadType = reflect.TypeOf((*FileUpload)(nil))

// File binds multipart files into *FileUpload fields tagged `file:"name"`.
// A missing file leaves the field nil. Requests that are not multipart are
// ErrNotApplicable.
func File() Func {
	return func(r *http.Request, v any) error {
		mt, err := mediaType(r)
		if err != nil {
			return err
		}
		if mt != "multipart/form-data" {
			return ErrNotApplicable
		}
		if err := parseMultipart(r); err != nil {
			return err
		}

		return eachTagged(v, "file", func(field reflect.Value, name string) error {
			if field.Type() != fileUploadType {
				return fmt.Errorf("%w: field %q must be *binder.FileUpload", ErrInvalidForm, name)
			}
			headers := r.MultipartForm.File[name]
			if len(headers) == 0 {
				return nil
			}
			fh := headers[0]
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("%w: open %q: %v", ErrInvalidForm, name, err)
			}
			defer f.Close()
			content, err := io.ReadAll(f)
			if err != nil {
				return fmt.Errorf("%w: read %q: %v", ErrInvalidForm, name, err)
			}
			field.Set(reflect.ValueOf(&FileUpload{
				Filename: fh.Filename,
				Size:     fh.Size,
				Header:   fh.Header,
				Content:  content,
			}))
			return nil
		})
	}
}

