// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain keeps connection URIs in the OS credential store so that
// db_config.json never holds a password. macOS uses the security command when
// it is available; every other platform goes through 99designs/keyring.
package keychain

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

// ErrNotFound is returned when no URI has been stored.
var ErrNotFound = errors.New("connection uri not found in keychain")

var (
	globalManager *Manager
	mu            sync.Mutex
)

// Manager provides thread-safe access to the stored connection URI.
type Manager struct {
	mu      sync.RWMutex
	backend keychainBackend
}

type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "querygate"

// KeyConnectionURI is the item holding the active store's connection URI.
const KeyConnectionURI = "connection_uri"

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if b, err := newSecurityBackend(); err == nil {
			return &Manager{backend: b}, nil
		}
	}

	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewWithKeyring(ring), nil
}

// NewWithKeyring wraps an already opened keyring.
func NewWithKeyring(ring keyring.Keyring) *Manager {
	return &Manager{backend: ringBackend{ring: ring}}
}

// GetManager returns the process-wide manager, retrying initialization on
// each call until it succeeds.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		// pass needs 'brew install pass'
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	case "linux":
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, errors.New("secure storage not supported on this OS")
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. On macOS 26.0+, install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

// SaveConnectionURI stores uri, replacing any previous value.
func (m *Manager) SaveConnectionURI(uri string) error {
	if uri == "" {
		return errors.New("refusing to store an empty connection uri")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Set(KeyConnectionURI, uri)
}

// LoadConnectionURI returns the stored URI or ErrNotFound.
func (m *Manager) LoadConnectionURI() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uri, err := m.backend.Get(KeyConnectionURI)
	if err != nil {
		return "", err
	}
	if uri == "" {
		return "", ErrNotFound
	}
	return uri, nil
}

// ClearConnectionURI removes the stored URI. Missing items are not an error.
func (m *Manager) ClearConnectionURI() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Delete(KeyConnectionURI)
}

type ringBackend struct {
	ring keyring.Keyring
}

func (r ringBackend) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (r ringBackend) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(it.Data), nil
}

func (r ringBackend) Delete(key string) error {
	err := r.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
