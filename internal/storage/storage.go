// Package storage stores uploaded slips and contract documents.
//
// Uploads are staged before the database transaction opens, promoted to their
// public path after commit and discarded when the transaction aborts. Public
// paths always live under PublicPrefix.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/rongwang/land-rental-server/internal/apperror"
)

// PublicPrefix is the root every stored file path starts with
const PublicPrefix = "/storage/uploads"

// Upload categories
const (
	CategorySlips     = "slips"
	CategoryContracts = "contracts"
)

// Staged is a file written to the staging area and not yet visible at Path
type Staged struct {
	Category    string
	Name        string
	Path        string // public path the file will have once promoted
	ContentType string
	stagingKey  string
}

// Storage is implemented by the local filesystem and S3 backends
type Storage interface {
	// Stage writes data to the staging area under a final name
	Stage(ctx context.Context, category, name, contentType string, data []byte) (*Staged, error)
	// Promote moves a staged file to its public path
	Promote(ctx context.Context, staged *Staged) error
	// Discard removes a staged file; discarding twice is not an error
	Discard(ctx context.Context, staged *Staged) error
	// Delete removes a promoted file. Paths outside PublicPrefix are refused.
	Delete(ctx context.Context, publicPath string) error
}

// PublicPath joins category and name under PublicPrefix
func PublicPath(category, name string) string {
	return path.Join(PublicPrefix, category, name)
}

// CheckPublicPath cleans p and refuses anything that escapes PublicPrefix
func CheckPublicPath(p string) (string, error) {
	if p == "" {
		return "", apperror.Validation("empty storage path")
	}
	clean := path.Clean("/" + strings.TrimSpace(p))
	if !strings.HasPrefix(clean, PublicPrefix+"/") {
		return "", apperror.Validation("refusing to delete %q outside %s", p, PublicPrefix)
	}
	return clean, nil
}

func checkName(category, name string) error {
	if category != CategorySlips && category != CategoryContracts {
		return apperror.Validation("unknown upload category %q", category)
	}
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return apperror.Validation("invalid file name %q", name)
	}
	return nil
}
