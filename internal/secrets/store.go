// internal/secrets/store.go
// Encrypted-at-rest storage for LLM provider API keys. The summary
// engine only sees the Key lookup; how keys are sealed on disk stays
// contained here.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

const masterKeyEnv = "PAPERSTREAM_SECRET_KEY"

var (
	// ErrNoKey means neither the store nor the environment has an API
	// key for the requested provider.
	ErrNoKey = errors.New("no API key configured")
	// ErrNoMasterKey means writing to the store is impossible because
	// PAPERSTREAM_SECRET_KEY is unset or malformed.
	ErrNoMasterKey = errors.New("PAPERSTREAM_SECRET_KEY is not set (expected 64 hex characters)")
)

// envFallbacks maps provider ids to the conventional environment
// variables consulted when the store has no entry.
var envFallbacks = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// Store keeps API keys in a JSON file, each value sealed individually
// with nacl/secretbox under a master key from the environment. Without
// a master key the store still serves reads through the environment
// fallbacks; only Set and Delete need the key.
type Store struct {
	mu        sync.Mutex
	path      string
	masterKey [32]byte
	sealed    bool // master key present and well formed
}

type storeFile struct {
	Keys map[string]string `json:"keys"` // "<userID>/<provider>" -> base64(nonce || box)
}

// Open prepares a store at path. The file itself is created lazily on
// the first Set.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	raw := strings.TrimSpace(os.Getenv(masterKeyEnv))
	if raw == "" {
		return s, nil
	}

	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return nil, ErrNoMasterKey
	}
	copy(s.masterKey[:], decoded)
	s.sealed = true
	return s, nil
}

// Key retrieves the API key for a user and provider. Store entries win
// over environment variables; ErrNoKey means neither source has one.
func (s *Store) Key(userID int64, provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", err
	}

	if sealed, ok := entries[entryName(userID, provider)]; ok && s.sealed {
		plain, err := s.open(sealed)
		if err != nil {
			return "", fmt.Errorf("cannot decrypt stored key for %s: %w", provider, err)
		}
		return plain, nil
	}

	if env, ok := envFallbacks[provider]; ok {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}

	return "", fmt.Errorf("%w for provider %s", ErrNoKey, provider)
}

// Set stores an API key, replacing any previous one for the same user
// and provider.
func (s *Store) Set(userID int64, provider, key string) error {
	if provider == "" || key == "" {
		return errors.New("provider and key are required")
	}
	if !s.sealed {
		return ErrNoMasterKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	sealed, err := s.seal(key)
	if err != nil {
		return err
	}
	entries[entryName(userID, provider)] = sealed

	return s.save(entries)
}

// Delete removes a stored key. Deleting a key that was never stored
// returns ErrNoKey.
func (s *Store) Delete(userID int64, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	name := entryName(userID, provider)
	if _, ok := entries[name]; !ok {
		return fmt.Errorf("%w for provider %s", ErrNoKey, provider)
	}
	delete(entries, name)

	return s.save(entries)
}

func entryName(userID int64, provider string) string {
	return fmt.Sprintf("%d/%s", userID, provider)
}

func (s *Store) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading secret store: %w", err)
	}

	var f storeFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("error parsing secret store: %w", err)
	}
	if f.Keys == nil {
		f.Keys = map[string]string{}
	}
	return f.Keys, nil
}

func (s *Store) save(entries map[string]string) error {
	raw, err := json.MarshalIndent(storeFile{Keys: entries}, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating secret store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("error writing secret store: %w", err)
	}
	return nil
}

func (s *Store) seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("error generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.masterKey)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *Store) open(sealed string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(box) < 24 {
		return "", errors.New("sealed value too short")
	}

	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, &s.masterKey)
	if !ok {
		return "", errors.New("decryption failed (wrong master key?)")
	}
	return string(plain), nil
}
