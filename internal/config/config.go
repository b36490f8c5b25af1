// Package config persists the active store selection in the XDG config dir
// and reads runtime settings from the environment. Connection URIs may be
// kept in the OS keychain instead of the file.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/xdg"
)

// FileName is the persisted record inside the config dir.
const FileName = "db_config.json"

// CredentialSource says where the connection URI lives.
type CredentialSource string

const (
	CredentialFile     CredentialSource = "file"
	CredentialKeychain CredentialSource = "keychain"
)

// Record is the persisted store selection.
type Record struct {
	DatabaseKind     dsn.Dialect      `json:"database_kind"`
	Connection       dsn.Descriptor   `json:"connection"`
	CredentialSource CredentialSource `json:"credential_source"`
	LastUpdated      *time.Time       `json:"last_updated"`
}

// Configured reports whether the record points at a store.
func (r Record) Configured() bool {
	return r.Connection.URI != ""
}

// Default is the record used before anything was saved.
func Default() Record {
	return Record{
		DatabaseKind:     dsn.Postgres,
		Connection:       dsn.Descriptor{Dialect: dsn.Postgres},
		CredentialSource: CredentialFile,
	}
}

// Secrets stores the connection URI outside the file.
type Secrets interface {
	SaveConnectionURI(uri string) error
	LoadConnectionURI() (string, error)
	ClearConnectionURI() error
}

// Store reads and writes one record file.
type Store struct {
	path    string
	secrets Secrets
	now     func() time.Time
}

// NewStore returns a store for the file at path. secrets may be nil, in which
// case keychain-backed records cannot be saved or resolved.
func NewStore(path string, secrets Secrets) *Store {
	return &Store{path: path, secrets: secrets, now: time.Now}
}

// DefaultPath returns $XDG_CONFIG_HOME/querygate/db_config.json.
func DefaultPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Load reads the record; a missing file returns Default. For keychain records
// the URI is filled in from Secrets.
func (s *Store) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Record{}, errors.Wrap(errors.Config, "cannot read "+FileName, err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errors.Wrap(errors.Config, FileName+" is not valid JSON", err)
	}
	if r.CredentialSource == "" {
		r.CredentialSource = CredentialFile
	}
	if r.Connection.Dialect == "" {
		r.Connection.Dialect = r.DatabaseKind
	}

	if r.CredentialSource == CredentialKeychain {
		if s.secrets == nil {
			return r, errors.New(errors.Config, "connection uri is stored in the keychain, which is unavailable")
		}
		uri, err := s.secrets.LoadConnectionURI()
		if err != nil {
			return r, errors.Wrap(errors.Config, "cannot read connection uri from keychain", err)
		}
		r.Connection.URI = uri
	}
	return r, nil
}

// Save writes r with 0600 permissions and stamps LastUpdated. Keychain records
// are written with a blank URI after the URI went to Secrets.
func (s *Store) Save(r Record) (Record, error) {
	now := s.now().UTC().Truncate(time.Second)
	r.LastUpdated = &now
	if r.DatabaseKind == "" {
		r.DatabaseKind = r.Connection.Dialect
	}
	if r.CredentialSource == "" {
		r.CredentialSource = CredentialFile
	}

	onDisk := r
	switch r.CredentialSource {
	case CredentialKeychain:
		if s.secrets == nil {
			return r, errors.New(errors.Config, "keychain is unavailable")
		}
		if err := s.secrets.SaveConnectionURI(r.Connection.URI); err != nil {
			return r, errors.Wrap(errors.Config, "cannot store connection uri in keychain", err)
		}
		onDisk.Connection.URI = ""
	case CredentialFile:
		// a previous keychain entry would otherwise linger
		if s.secrets != nil {
			_ = s.secrets.ClearConnectionURI()
		}
	default:
		return r, errors.Newf(errors.Config, "unknown credential source %q", r.CredentialSource)
	}

	b, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return r, errors.Wrap(errors.Config, "cannot encode "+FileName, err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return r, errors.Wrap(errors.Config, "cannot write "+FileName, err)
	}
	return r, nil
}

// Clear removes the record file and any keychain entry.
func (s *Store) Clear() error {
	if s.secrets != nil {
		_ = s.secrets.ClearConnectionURI()
	}
	if err := os.Remove(s.path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.Wrap(errors.Config, "cannot remove "+FileName, err)
	}
	return nil
}
