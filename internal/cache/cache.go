// Package cache provides a persistent, self-cleaning cache of previously
// computed content hashes, keyed so that any change to a file (size, inode,
// mtime) or to the requested byte range or algorithm is a guaranteed miss.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kpagano/fclones/internal/hasher"
	"github.com/kpagano/fclones/internal/types"
)

const bucketName = "hashes"

// Cache persists file hashes across runs using BoltDB. Each run opens the
// previous database read-only and builds a fresh one for writing; on Close
// the fresh database atomically replaces the old one, so only entries
// actually looked up (or freshly stored) during the run survive -- stale
// entries for files that were deleted or moved age out on their own.
type Cache struct {
	readDB  *bolt.DB
	writeDB *bolt.DB
	path    string
	enabled bool
}

// Open opens path's existing cache for reading and stages a new one for
// writing. An empty path returns a disabled cache whose methods are no-ops,
// used when the caller didn't request caching at all.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}

	if _, statErr := os.Stat(path); statErr == nil {
		readDB, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
		if err == nil {
			c.readDB = readDB
		}
	}

	newPath := path + ".new"
	writeDB, err := bolt.Open(newPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}
	c.writeDB = writeDB

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and, if the write database closed cleanly,
// atomically replaces the old cache file with the new one.
func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else if err := os.Rename(c.path+".new", c.path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

const keyVersion byte = 2 // bump when the key layout or hash width changes

// makeKey builds a deterministic lookup key:
// ver(1) + algorithm + NUL + path + NUL + size(8) + ino(8) + mtime(8) + offset(8) + length(8)
func makeKey(fi *types.FileInfo, offset, length int64, algorithm string) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(algorithm)
	buf.WriteByte(0)
	buf.WriteString(fi.Path.String())
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, fi.Size)
	_ = binary.Write(buf, binary.BigEndian, fi.Ino)
	_ = binary.Write(buf, binary.BigEndian, fi.ModTime.UnixNano())
	_ = binary.Write(buf, binary.BigEndian, offset)
	_ = binary.Write(buf, binary.BigEndian, length)
	return buf.Bytes()
}

// lookup retrieves a cached fingerprint for the given byte range and
// algorithm. ok is false on a miss; a read error never aborts the caller, it
// is simply treated as a miss with the error surfaced for logging.
func (c *Cache) lookup(fi *types.FileInfo, offset, length int64, algorithm string) (types.Hash128, bool, error) {
	if !c.enabled || c.readDB == nil {
		return types.Hash128{}, false, nil
	}

	key := makeKey(fi, offset, length, algorithm)
	var hi, lo uint64
	found := false

	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		data := b.Get(key)
		if len(data) != 16 {
			return nil
		}
		hi = binary.BigEndian.Uint64(data[0:8])
		lo = binary.BigEndian.Uint64(data[8:16])
		found = true
		return nil
	})
	if err != nil {
		return types.Hash128{}, false, fmt.Errorf("cache lookup: %w", err)
	}
	if !found {
		return types.Hash128{}, false, nil
	}
	return types.Hash128{Hi: hi, Lo: lo}, true, nil
}

// store saves h for the given byte range and algorithm into the new
// database -- both on an outright miss and, as a self-cleaning side effect,
// on every cache hit (see Sum128), so only entries actually used this run
// carry forward.
func (c *Cache) store(fi *types.FileInfo, offset, length int64, algorithm string, h types.Hash128) error {
	if !c.enabled || c.writeDB == nil {
		return nil
	}
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], h.Hi)
	binary.BigEndian.PutUint64(buf[8:16], h.Lo)

	key := makeKey(fi, offset, length, algorithm)
	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(key, buf[:])
	}); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Sum128 returns fi's fingerprint over [offset, offset+length), consulting
// the cache first and falling back to hasher.Sum128 on a miss. A cache hit
// is copied into the new database so it survives into the next run's
// cache. Lookups consult only the previous run's database, so a key first
// hashed during this Cache's lifetime is hashed again if it is asked for a
// second time.
func (c *Cache) Sum128(fi *types.FileInfo, offset, length int64, algorithm string) (types.Hash128, error) {
	if h, ok, err := c.lookup(fi, offset, length, algorithm); err == nil && ok {
		_ = c.store(fi, offset, length, algorithm, h)
		return h, nil
	}

	h, err := hasher.Sum128(fi.Path.String(), offset, length, algorithm)
	if err != nil {
		return types.Hash128{}, err
	}
	_ = c.store(fi, offset, length, algorithm, h)
	return h, nil
}
