package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyStorageType selects where the backend API key is kept.
type KeyStorageType string

const (
	// KeyStorageTypeEnv reads auth.api_key, usually set via CLAUDINE_AUTH__API_KEY. Read-only.
	KeyStorageTypeEnv KeyStorageType = "env"
	// KeyStorageTypeFile keeps the key in a file readable only by the owner.
	KeyStorageTypeFile KeyStorageType = "file"
	// KeyStorageTypeKeyring keeps the key in the OS keyring.
	KeyStorageTypeKeyring KeyStorageType = "keyring"
)

// AuthConfig configures backend key storage.
type AuthConfig struct {
	Storage KeyStorageType `koanf:"storage" validate:"oneof=env file keyring"`
	APIKey  string         `koanf:"api_key"`
	// File defaults to claudine/api_key below the user config directory.
	File           string `koanf:"file"`
	KeyringService string `koanf:"keyring_service" validate:"required_if=Storage keyring"`
	KeyringUser    string `koanf:"keyring_user" validate:"required_if=Storage keyring"`
}

// KeyStore reads and writes the backend API key. Writing an empty key clears it.
type KeyStore interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, key string) error
}

// ErrReadOnlyStore is returned when writing to env storage.
var ErrReadOnlyStore = errors.New("key storage is read-only")

// NewKeyStore creates the configured store.
func (a AuthConfig) NewKeyStore() (KeyStore, error) {
	switch a.Storage {
	case KeyStorageTypeEnv, "":
		return envKeyStore{key: a.APIKey}, nil
	case KeyStorageTypeFile:
		path := a.File
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("resolving config directory: %w", err)
			}
			path = filepath.Join(dir, "claudine", "api_key")
		}
		return &fileKeyStore{path: path}, nil
	case KeyStorageTypeKeyring:
		return &keyringKeyStore{service: a.KeyringService, user: a.KeyringUser}, nil
	default:
		return nil, fmt.Errorf("unsupported key storage %q (expected: env, file, keyring)", a.Storage)
	}
}

type envKeyStore struct {
	key string
}

func (s envKeyStore) Read(context.Context) (string, error) {
	return strings.TrimSpace(s.key), nil
}

func (s envKeyStore) Write(context.Context, string) error {
	return ErrReadOnlyStore
}

type fileKeyStore struct {
	path string
}

// Read returns an empty key when the file does not exist.
func (s *fileKeyStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

func (s *fileKeyStore) Write(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing key file: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	// Replaced atomically via rename.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".api_key-*")
	if err != nil {
		return fmt.Errorf("creating temp key file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("restricting key file: %w", err)
	}
	if _, err := tmp.WriteString(key); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing key file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing key file: %w", err)
	}
	return nil
}

type keyringKeyStore struct {
	service string
	user    string
}

// Read returns an empty key when the keyring holds no entry.
func (s *keyringKeyStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading keyring: %w", err)
	}
	return key, nil
}

func (s *keyringKeyStore) Write(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		err := keyring.Delete(s.service, s.user)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("clearing keyring: %w", err)
		}
		return nil
	}

	if err := keyring.Set(s.service, s.user, key); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}
