package storage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pennyledger/receipt-pipeline/internal/secrets"
)

// ArchiveTokenSecret is the secret name holding the cold-storage access token
const ArchiveTokenSecret = "ARCHIVE_ACCESS_TOKEN"

// ArchiveSigner produces authenticated download URLs for receipts that
// have been moved to cold storage.
type ArchiveSigner interface {
	SignURL(baseURL, path string) (string, error)
}

// Archive implements ArchiveSigner with a bearer token carried as a query
// parameter, the scheme the archive service expects for direct downloads.
type Archive struct {
	secrets secrets.Store
}

// NewArchive creates an archive signer over the given secret store
func NewArchive(store secrets.Store) *Archive {
	return &Archive{secrets: store}
}

// SignURL returns the authenticated URL for an archived file
func (a *Archive) SignURL(baseURL, path string) (string, error) {
	token, err := a.secrets.Get(ArchiveTokenSecret)
	if err != nil {
		return "", fmt.Errorf("archive token: %w", err)
	}

	full := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	parsed, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("parsing archive url %q: %w", full, err)
	}

	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
