// Package localstore persists small device-local values (such as the signed-in user
// id) in a single file sealed with NaCl secretbox. The key is derived from a
// passphrase with scrypt; the salt is stored at the front of the file.
package localstore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// KeyUserID holds the id of the signed-in user, used to scope upload keys.
const KeyUserID = "@user_id"

const (
	keySize   = 32
	saltSize  = 32
	nonceSize = 24
)

var scryptParams = struct {
	N int
	r int
	p int
}{32768, 8, 1}

var (
	// ErrNotFound is returned by Get when the key has never been written.
	ErrNotFound = errors.New("localstore: key not found")
	// ErrCorrupt indicates the file could not be opened with the configured passphrase.
	ErrCorrupt = errors.New("localstore: failed to decrypt store")
	// ErrNoPassphrase is returned by Open when the passphrase is empty.
	ErrNoPassphrase = errors.New("localstore: passphrase is required")
)

// Store is a file-backed key-value map. Every write re-seals the whole file.
type Store struct {
	path string

	mu     sync.Mutex
	key    *[keySize]byte
	salt   []byte
	values map[string]string
}

// Open loads the store at path, creating an empty one when the file does not exist.
func Open(path, passphrase string) (*Store, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		salt, err := randomBytes(saltSize)
		if err != nil {
			return nil, err
		}
		key, err := deriveKey([]byte(passphrase), salt)
		if err != nil {
			return nil, err
		}
		return &Store{path: path, key: key, salt: salt, values: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local store %s: %w", path, err)
	}

	if len(data) < saltSize+nonceSize+secretbox.Overhead {
		return nil, ErrCorrupt
	}
	salt := append([]byte(nil), data[:saltSize]...)
	key, err := deriveKey([]byte(passphrase), salt)
	if err != nil {
		return nil, err
	}

	plain, ok := open(key, data[saltSize:])
	if !ok {
		return nil, ErrCorrupt
	}
	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("decode local store: %w", err)
	}

	return &Store{path: path, key: key, salt: salt, values: values}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key and flushes the file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// Delete removes key and flushes the file. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

func (s *Store) flush() error {
	plain, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encode local store: %w", err)
	}
	sealed, err := seal(s.key, plain)
	if err != nil {
		return err
	}

	out := make([]byte, 0, len(s.salt)+len(sealed))
	out = append(out, s.salt...)
	out = append(out, sealed...)

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create local store dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write local store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace local store: %w", err)
	}
	return nil
}

func deriveKey(passphrase, salt []byte) (*[keySize]byte, error) {
	raw, err := scrypt.Key(passphrase, salt, scryptParams.N, scryptParams.r, scryptParams.p, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive local store key: %w", err)
	}
	var key [keySize]byte
	copy(key[:], raw)
	clear(raw)
	return &key, nil
}

// seal prepends a random nonce to the secretbox ciphertext.
func seal(key *[keySize]byte, in []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, nonceSize, nonceSize+len(in)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, in, &nonce, key), nil
}

func open(key *[keySize]byte, in []byte) ([]byte, bool) {
	if len(in) < nonceSize {
		return nil, false
	}
	var nonce [nonceSize]byte
	copy(nonce[:], in)
	return secretbox.Open(nil, in[nonceSize:], &nonce, key)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return b, nil
}
