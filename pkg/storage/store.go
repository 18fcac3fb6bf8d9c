package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
)

const hashPrefix = "sha256:"

var ErrObjectNotFound = errors.New("object not found")

// ContentStore is the content-addressable evidence store gateway
type ContentStore interface {
	// Put stores the bytes and returns a locator derived from their hash
	Put(ctx context.Context, data []byte, meta ObjectMetadata) (string, error)

	// Get fetches bytes by locator. Verified reflects the store's own hash
	// check against expectedHash and must not be trusted by callers.
	Get(ctx context.Context, locator, expectedHash string) (*Object, error)
}

// ObjectMetadata travels with stored evidence bytes
type ObjectMetadata struct {
	ContentType string
	FileName    string
	Attributes  map[string]string
}

// Object is the result of a Get
type Object struct {
	Data     []byte
	Verified bool
}

// HashBytes returns the lowercase hex SHA-256 of data
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NormalizeHash strips an optional "sha256:" prefix and lowercases the digest
func NormalizeHash(hash string) string {
	hash = strings.TrimSpace(strings.ToLower(hash))
	return strings.TrimPrefix(hash, hashPrefix)
}

// HashesEqual compares two declared or computed hashes
func HashesEqual(a, b string) bool {
	return a != "" && NormalizeHash(a) == NormalizeHash(b)
}

// Locator returns the canonical locator for a digest
func Locator(hash string) string {
	return hashPrefix + NormalizeHash(hash)
}

// MemoryStore keeps evidence in process memory; used when no bucket is configured
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory content store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, data []byte, meta ObjectMetadata) (string, error) {
	hash := HashBytes(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[hash]; !ok {
		m.objects[hash] = append([]byte(nil), data...)
	}
	return Locator(hash), nil
}

func (m *MemoryStore) Get(ctx context.Context, locator, expectedHash string) (*Object, error) {
	m.mu.RLock()
	data, ok := m.objects[NormalizeHash(locator)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	data = append([]byte(nil), data...)
	return &Object{Data: data, Verified: HashesEqual(HashBytes(data), expectedHash)}, nil
}
