// Package shareindex implements the local, per-node registry of shared
// files (§4.H): share-code generation, idempotent share/unshare, and
// JSON persistence with migration from the legacy flat record layout.
package shareindex

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/gigi-net/gigi-core/internal/proto/transfer"
)

// SourceRef identifies the origin of a shared file: either a filesystem
// path or an opaque platform content URI (§7's "Platform URIs" note).
// Exactly one of Path or URI is set.
type SourceRef struct {
	Path string `json:"path,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// PathSource builds a SourceRef over a filesystem path.
func PathSource(path string) SourceRef { return SourceRef{Path: path} }

// URISource builds a SourceRef over a platform content URI.
func URISource(uri string) SourceRef { return SourceRef{URI: uri} }

// IsURI reports whether the source is a platform URI rather than a path.
func (s SourceRef) IsURI() bool { return s.URI != "" }

// key is the map key used for idempotence lookups: same source, same key.
func (s SourceRef) key() string {
	if s.URI != "" {
		return "uri:" + s.URI
	}
	return "path:" + s.Path
}

// ShareEntry is one row of the share index.
type ShareEntry struct {
	ShareCode  string    `json:"share_code"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Hash       string    `json:"hash"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	Revoked    bool      `json:"revoked"`
	Source     SourceRef `json:"source"`
}

// legacyEntry mirrors the older flat layout this codebase migrates away
// from on first load: path, filename, size, share_code, hash, created_at
// directly on the record instead of nested under "source".
type legacyEntry struct {
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	ShareCode string    `json:"share_code"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// Hasher computes the SHA-256 hash and size of a source's current
// content. The node wires this to a local-file reader for SourceRef.Path
// and to the injected platform-URI chunk reader for SourceRef.URI, so
// shareindex itself stays free of I/O specifics.
type Hasher func(ref SourceRef) (sha256Hex string, size int64, err error)

// Index is the in-memory share registry, mirrored to a JSON file on
// every mutation.
type Index struct {
	mu       sync.RWMutex
	path     string
	entries  map[string]*ShareEntry // share-code -> entry
	bySource map[string]string      // source key -> share-code
}

// Open loads path if it exists (migrating the legacy layout in place)
// or starts an empty index if it does not.
func Open(path string) (*Index, error) {
	idx := &Index{
		path:     path,
		entries:  make(map[string]*ShareEntry),
		bySource: make(map[string]string),
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) load() error {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("shareindex: read %s: %w", idx.path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("shareindex: parse %s: %w", idx.path, err)
	}

	entries := make(map[string]*ShareEntry, len(raw))
	bySource := make(map[string]string, len(raw))
	migrated := false

	for code, msg := range raw {
		var peek map[string]json.RawMessage
		if err := json.Unmarshal(msg, &peek); err != nil {
			return fmt.Errorf("shareindex: parse entry %s: %w", code, err)
		}

		var entry ShareEntry
		if _, ok := peek["source"]; ok {
			if err := json.Unmarshal(msg, &entry); err != nil {
				return fmt.Errorf("shareindex: parse entry %s: %w", code, err)
			}
		} else {
			var legacy legacyEntry
			if err := json.Unmarshal(msg, &legacy); err != nil {
				return fmt.Errorf("shareindex: parse legacy entry %s: %w", code, err)
			}
			entry = ShareEntry{
				ShareCode:  legacy.ShareCode,
				Filename:   legacy.Filename,
				Size:       legacy.Size,
				Hash:       legacy.Hash,
				ChunkCount: chunkCountFor(legacy.Size),
				CreatedAt:  legacy.CreatedAt,
				Source:     PathSource(legacy.Path),
			}
			migrated = true
		}

		e := entry
		entries[code] = &e
		if !e.Revoked {
			bySource[e.Source.key()] = code
		}
	}

	idx.entries = entries
	idx.bySource = bySource

	if migrated {
		return idx.save()
	}
	return nil
}

// save persists the index atomically via temp file + rename. Callers
// must hold idx.mu.
func (idx *Index) save() error {
	data, err := json.MarshalIndent(idx.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("shareindex: marshal: %w", err)
	}
	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("shareindex: write temp: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("shareindex: rename: %w", err)
	}
	return nil
}

func chunkCountFor(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + transfer.ChunkSize - 1) / transfer.ChunkSize)
}

// GenerateShareCode derives the 8-hex-character share-code for filename
// shared at nowNS (nanoseconds since epoch): the first 4 bytes of
// BLAKE3(filename || 16-byte little-endian encoding of nowNS), hex
// encoded.
func GenerateShareCode(filename string, nowNS int64) string {
	var tsBuf [16]byte
	binary.LittleEndian.PutUint64(tsBuf[:8], uint64(nowNS))
	h := blake3.New()
	h.Write([]byte(filename))
	h.Write(tsBuf[:])
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:4])
}

// ShareFile registers ref under filename, hashing its current content
// with hash. If an entry already exists for this exact source and the
// hash is unchanged, its share-code is returned unchanged. If the
// source is known but its hash has changed, the entry is updated in
// place, keeping its share-code and creation time. Otherwise a new
// entry is created.
func (idx *Index) ShareFile(ref SourceRef, filename string, hash Hasher, now time.Time) (string, error) {
	sum, size, err := hash(ref)
	if err != nil {
		return "", fmt.Errorf("shareindex: hash source: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := ref.key()
	if code, ok := idx.bySource[key]; ok {
		entry := idx.entries[code]
		if entry.Hash == sum {
			entry.Revoked = false
			return entry.ShareCode, idx.save()
		}
		entry.Filename = filename
		entry.Size = size
		entry.Hash = sum
		entry.ChunkCount = chunkCountFor(size)
		entry.Revoked = false
		return entry.ShareCode, idx.save()
	}

	code := GenerateShareCode(filename, now.UnixNano())
	entry := &ShareEntry{
		ShareCode:  code,
		Filename:   filename,
		Size:       size,
		Hash:       sum,
		ChunkCount: chunkCountFor(size),
		CreatedAt:  now,
		Source:     ref,
	}
	idx.entries[code] = entry
	idx.bySource[key] = code
	return code, idx.save()
}

// UnshareFile marks a share-code revoked. Unsharing an already-revoked
// or unknown share-code is a no-op returning ErrNotFound only for the
// latter, so callers may treat repeated unshare calls as idempotent.
func (idx *Index) UnshareFile(shareCode string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry, ok := idx.entries[shareCode]
	if !ok {
		return ErrNotFound
	}
	if entry.Revoked {
		return nil
	}
	entry.Revoked = true
	delete(idx.bySource, entry.Source.key())
	return idx.save()
}

// Get returns a copy of the entry for shareCode. It returns ErrRevoked
// for a share that has been unshared, distinct from ErrNotFound for a
// share-code that never existed.
func (idx *Index) Get(shareCode string) (ShareEntry, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entry, ok := idx.entries[shareCode]
	if !ok {
		return ShareEntry{}, ErrNotFound
	}
	if entry.Revoked {
		return ShareEntry{}, ErrRevoked
	}
	return *entry, nil
}

// ListSharedFiles returns all non-revoked entries.
func (idx *Index) ListSharedFiles() []ShareEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]ShareEntry, 0, len(idx.entries))
	for _, entry := range idx.entries {
		if !entry.Revoked {
			out = append(out, *entry)
		}
	}
	return out
}
