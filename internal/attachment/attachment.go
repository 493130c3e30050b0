// Package attachment stores task files (images, PDFs, voice notes) in a
// remote blob store and hands back their public URLs.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Sentinel errors for blob store failures.
var (
	ErrUnreachable = errors.New("attachment store unreachable")
	ErrTimeout     = errors.New("attachment store timeout")
	ErrRejected    = errors.New("attachment store rejected request")
	ErrUnsupported = errors.New("unsupported attachment type")
)

// Store uploads and removes blobs.
type Store interface {
	// Store uploads blob under folder and returns its public URL.
	Store(ctx context.Context, blob Blob, folder string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Blob is an uploaded file held in memory.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Kind says which list of a task an attachment lands in.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindVoice    Kind = "voice"
)

// Classify maps a declared content type onto a Kind.
func Classify(contentType string) (Kind, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage, nil
	case ct == "application/pdf":
		return KindDocument, nil
	case strings.HasPrefix(ct, "audio/"):
		return KindVoice, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, contentType)
}

// Folder returns the destination folder for a kind under root. Voice notes
// live in their own subfolder.
func Folder(root string, kind Kind) string {
	if kind == KindVoice {
		return path.Join(root, "voice")
	}
	return root
}
