package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/api/response"
	"github.com/shopfloor/shopfloor/internal/attachment"
)

// Form parts beyond this are spooled to temporary files.
const multipartMemory = 8 << 20

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// parseMultipart caps the body at maxBytes and parses it, writing a 413 or
// 400 on failure.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) bool {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart body", nil)
		return false
	}
	return true
}

func readBlobs(form *multipart.Form, field string) ([]attachment.Blob, error) {
	var blobs []attachment.Blob
	for _, fh := range form.File[field] {
		blob, err := readBlob(fh)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

func readBlob(fh *multipart.FileHeader) (attachment.Blob, error) {
	f, err := fh.Open()
	if err != nil {
		return attachment.Blob{}, fmt.Errorf("opening %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return attachment.Blob{}, fmt.Errorf("reading %q: %w", fh.Filename, err)
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return attachment.Blob{Filename: fh.Filename, ContentType: ct, Data: data}, nil
}

// formFields reads optional typed values out of a multipart form. The first
// parse error is kept in err.
type formFields struct {
	form *multipart.Form
	err  error
}

func (f *formFields) text(name string) *string {
	vs, ok := f.form.Value[name]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

func (f *formFields) number(name string) *int {
	s := f.text(name)
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil {
		f.fail(fmt.Errorf("%s must be an integer", name))
		return nil
	}
	return &n
}

func (f *formFields) id(name string) *uuid.UUID {
	s := f.text(name)
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*s))
	if err != nil {
		f.fail(fmt.Errorf("%s must be a valid UUID", name))
		return nil
	}
	return &id
}

func (f *formFields) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
