package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/cli/internal/dsn"
	"querygate/cli/internal/errors"
)

type memSecrets struct {
	uri     string
	failSet bool
}

func (m *memSecrets) SaveConnectionURI(uri string) error {
	if m.failSet {
		return stderrors.New("locked")
	}
	m.uri = uri
	return nil
}

func (m *memSecrets) LoadConnectionURI() (string, error) {
	if m.uri == "" {
		return "", stderrors.New("not found")
	}
	return m.uri, nil
}

func (m *memSecrets) ClearConnectionURI() error { m.uri = ""; return nil }

func newStore(t *testing.T, secrets Secrets) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), FileName), secrets)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	s := newStore(t, nil)
	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), r)
	assert.False(t, r.Configured())
}

func TestSaveFileRecord(t *testing.T) {
	s := newStore(t, &memSecrets{})
	desc := dsn.Descriptor{Dialect: dsn.MySQL, URI: "mysql://root:pw@localhost:3306/shop", Database: "shop"}

	saved, err := s.Save(Record{Connection: desc})
	require.NoError(t, err)
	assert.Equal(t, dsn.MySQL, saved.DatabaseKind)
	assert.Equal(t, CredentialFile, saved.CredentialSource)
	require.NotNil(t, saved.LastUpdated)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "mysql", onDisk["database_kind"])
	assert.Equal(t, "file", onDisk["credential_source"])
	assert.Equal(t, "2026-01-01T12:00:00Z", onDisk["last_updated"])
	conn := onDisk["connection"].(map[string]any)
	assert.Equal(t, desc.URI, conn["uri"])

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, desc, loaded.Connection)
	assert.True(t, loaded.Configured())
}

func TestSaveKeychainRecordKeepsURIOutOfFile(t *testing.T) {
	secrets := &memSecrets{}
	s := newStore(t, secrets)
	desc := dsn.Descriptor{Dialect: dsn.Postgres, URI: "postgres://app:secret@db:5432/shop"}

	_, err := s.Save(Record{Connection: desc, CredentialSource: CredentialKeychain})
	require.NoError(t, err)
	assert.Equal(t, desc.URI, secrets.uri)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, desc.URI, loaded.Connection.URI)
	assert.Equal(t, CredentialKeychain, loaded.CredentialSource)
}

func TestSwitchingToFileClearsKeychain(t *testing.T) {
	secrets := &memSecrets{uri: "postgres://old"}
	s := newStore(t, secrets)
	_, err := s.Save(Record{Connection: dsn.Descriptor{Dialect: dsn.SQLite, URI: "sqlite:///tmp/a.db"}})
	require.NoError(t, err)
	assert.Empty(t, secrets.uri)
}

func TestKeychainFailuresAreConfigErrors(t *testing.T) {
	s := newStore(t, &memSecrets{failSet: true})
	_, err := s.Save(Record{Connection: dsn.Descriptor{Dialect: dsn.Postgres, URI: "postgres://x"}, CredentialSource: CredentialKeychain})
	assert.True(t, errors.Is(err, errors.Config))

	noSecrets := newStore(t, nil)
	_, err = noSecrets.Save(Record{CredentialSource: CredentialKeychain})
	assert.True(t, errors.Is(err, errors.Config))

	require.NoError(t, os.WriteFile(noSecrets.Path(), []byte(`{"database_kind":"postgres","credential_source":"keychain"}`), 0o600))
	_, err = noSecrets.Load()
	assert.True(t, errors.Is(err, errors.Config))
}

func TestLoadCorruptFile(t *testing.T) {
	s := newStore(t, nil)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))
	_, err := s.Load()
	assert.True(t, errors.Is(err, errors.Config))
}

func TestLoadFillsDialectFromKind(t *testing.T) {
	s := newStore(t, nil)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"database_kind":"mongodb","connection":{"uri":"mongodb://localhost"}}`), 0o600))
	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, dsn.MongoDB, r.Connection.Dialect)
	assert.Equal(t, CredentialFile, r.CredentialSource)
}

func TestClear(t *testing.T) {
	secrets := &memSecrets{}
	s := newStore(t, secrets)
	_, err := s.Save(Record{Connection: dsn.Descriptor{Dialect: dsn.Postgres, URI: "postgres://x"}, CredentialSource: CredentialKeychain})
	require.NoError(t, err)

	require.NoError(t, s.Clear())
	assert.Empty(t, secrets.uri)
	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Clear())
}
