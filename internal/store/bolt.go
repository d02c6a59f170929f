package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for the config directory (~/.patcher/).
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database and key files.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt database lock.
	storeOpenTimeout = 5 * time.Second

	// pepperLen is the size of the random pepper backing key derivation.
	pepperLen = 32

	// keySalt binds derived keys to this application's secret namespace.
	keySalt = "patcher/credentials"
)

var (
	secretsBucket  = []byte("secrets")
	datasetsBucket = []byte("datasets")
)

// BoltStore is a Store backed by a bbolt database. Secret values are
// encrypted at rest with a key derived from a pepper file that lives
// next to the database, both readable only by the owning user.
type BoltStore struct {
	db     *bolt.DB
	sealer *sealer
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".patcher"
	}

	return filepath.Join(home, ".patcher")
}

// Open opens the store at ~/.patcher/patcher.db, creating the directory,
// database, and pepper file on first use.
func Open() (*BoltStore, error) {
	return OpenAt(defaultDir())
}

// OpenAt opens a store rooted at the given directory. Useful for tests
// that need an isolated database.
func OpenAt(dir string) (*BoltStore, error) {
	if err := os.MkdirAll(dir, storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	pepper, err := loadOrCreatePepper(filepath.Join(dir, "patcher.key"))
	if err != nil {
		return nil, err
	}

	key, err := deriveKey(pepper, keySalt)
	if err != nil {
		return nil, err
	}

	sl, err := newSealer(key)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, "patcher.db"), storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(secretsBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(datasetsBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}

	return &BoltStore{db: db, sealer: sl}, nil
}

// loadOrCreatePepper reads the pepper file, generating it on first run.
func loadOrCreatePepper(path string) ([]byte, error) {
	pepper, err := os.ReadFile(path)
	if err == nil {
		if len(pepper) != pepperLen {
			return nil, fmt.Errorf("pepper file %s has unexpected length %d", path, len(pepper))
		}

		return pepper, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading pepper file: %w", err)
	}

	pepper = make([]byte, pepperLen)
	if _, err := rand.Read(pepper); err != nil {
		return nil, fmt.Errorf("generating pepper: %w", err)
	}

	if err := os.WriteFile(path, pepper, storeFilePerm); err != nil {
		return nil, fmt.Errorf("writing pepper file: %w", err)
	}

	return pepper, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get returns the decrypted value for key, or ErrNotFound.
func (s *BoltStore) Get(key string) (string, error) {
	var sealed []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(secretsBucket).Get([]byte(key))
		if v != nil {
			sealed = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", key, err)
	}

	if sealed == nil {
		return "", ErrNotFound
	}

	plaintext, err := s.sealer.open(sealed)
	if err != nil {
		return "", fmt.Errorf("unsealing secret %s: %w", key, err)
	}

	return string(plaintext), nil
}

// Set encrypts and persists the value for key.
func (s *BoltStore) Set(key, value string) error {
	sealed, err := s.sealer.seal([]byte(value))
	if err != nil {
		return fmt.Errorf("sealing secret %s: %w", key, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(secretsBucket).Put([]byte(key), sealed)
	})
	if err != nil {
		return fmt.Errorf("writing secret %s: %w", key, err)
	}

	return nil
}

// Delete removes key, reporting whether a value was present.
func (s *BoltStore) Delete(key string) (bool, error) {
	var existed bool

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(secretsBucket)
		existed = b.Get([]byte(key)) != nil

		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("deleting secret %s: %w", key, err)
	}

	return existed, nil
}
