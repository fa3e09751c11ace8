// Package upload validates user-supplied files before anything is stored.
package upload

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/storage"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Rule describes what an upload of one kind must look like
type Rule struct {
	Category    string
	MaxBytes    int64
	Extensions  []string
	MIMETypes   []string
	DecodeImage bool
}

// SlipRule accepts payment slip images up to 5 MB
var SlipRule = Rule{
	Category:    storage.CategorySlips,
	MaxBytes:    5 << 20,
	Extensions:  []string{"jpg", "jpeg", "png", "gif", "webp"},
	MIMETypes:   []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	DecodeImage: true,
}

// ContractRule accepts contract PDFs up to 10 MB
var ContractRule = Rule{
	Category:   storage.CategoryContracts,
	MaxBytes:   10 << 20,
	Extensions: []string{"pdf"},
	MIMETypes:  []string{"application/pdf"},
}

// File is a raw upload as received from the client
type File struct {
	Name string
	Data []byte
}

// Artifact is an upload that passed validation and has a fresh random name
type Artifact struct {
	Category    string
	Name        string
	ContentType string
	Data        []byte
}

// Validate checks size, extension, sniffed content type (which must agree with
// the extension) and, for images, that the bytes fully decode. Any failure is a
// validation error.
func Validate(rule Rule, file File) (*Artifact, error) {
	if len(file.Data) == 0 {
		return nil, apperror.Validation("uploaded file is empty")
	}
	if int64(len(file.Data)) > rule.MaxBytes {
		return nil, apperror.Validation("file is larger than %d MB", rule.MaxBytes>>20)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Name), "."))
	if !contains(rule.Extensions, ext) {
		return nil, apperror.Validation("file type .%s is not allowed, expected one of %s", ext, strings.Join(rule.Extensions, ", "))
	}

	detected := mimetype.Detect(file.Data)
	contentType := ""
	for _, allowed := range rule.MIMETypes {
		if detected.Is(allowed) {
			contentType = allowed
			break
		}
	}
	if contentType == "" {
		return nil, apperror.Validation("file content (%s) does not match an allowed type", detected.String())
	}
	if want := canonicalExtension(contentType); normalizeExtension(ext) != want {
		return nil, apperror.Validation("file extension .%s does not match its content (%s)", ext, contentType)
	}
	ext = canonicalExtension(contentType)

	if rule.DecodeImage {
		if _, _, err := image.Decode(bytes.NewReader(file.Data)); err != nil {
			return nil, apperror.Validation("file is not a readable image: %v", err)
		}
	}

	return &Artifact{
		Category:    rule.Category,
		Name:        fmt.Sprintf("%s.%s", uuid.New().String(), ext),
		ContentType: contentType,
		Data:        file.Data,
	}, nil
}

// ReadMultipart reads at most rule.MaxBytes+1 bytes from a form file
func ReadMultipart(rule Rule, header *multipart.FileHeader) (File, error) {
	if header == nil {
		return File{}, apperror.Validation("no file uploaded")
	}
	if header.Size > rule.MaxBytes {
		return File{}, apperror.Validation("file is larger than %d MB", rule.MaxBytes>>20)
	}

	f, err := header.Open()
	if err != nil {
		return File{}, apperror.Validation("could not read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, rule.MaxBytes+1))
	if err != nil {
		return File{}, apperror.Validation("could not read uploaded file")
	}
	return File{Name: header.Filename, Data: data}, nil
}

// canonicalExtension is the extension stored for a sniffed content type
func canonicalExtension(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil {
		return strings.TrimPrefix(m.Extension(), ".")
	}
	return ""
}

func normalizeExtension(ext string) string {
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
