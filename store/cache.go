// Package store persists extracted feature vectors in BadgerDB, keyed by a
// digest of the signal and the extraction configuration.
package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-topo/logging"
	"github.com/RyanBlaney/sonido-topo/topology"
	"github.com/RyanBlaney/sonido-topo/topology/config"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const keyPrefix = "feat/"

// ErrClosed is returned by operations on a closed cache
var ErrClosed = errors.New("feature cache is closed")

// Entry is the stored form of one extraction
type Entry struct {
	Features  []float64
	Config    config.Config
	Samples   int
	CreatedAt time.Time
}

// FeatureCache stores feature vectors so that a signal is only extracted
// once per configuration.
type FeatureCache struct {
	db     *badger.DB
	logger logging.Logger
	closed atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens the cache at path. An empty path keeps the cache in memory.
func Open(path string) (*FeatureCache, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "feature_cache",
		"path":      path,
	})

	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		logger.Error(err, "Failed to open feature cache")
		return nil, fmt.Errorf("database error: %w", err)
	}

	logger.Info("Feature cache opened", logging.Fields{"in_memory": path == ""})
	return &FeatureCache{db: db, logger: logger}, nil
}

// Key returns the cache key of signal under cfg. The configuration is
// normalized first, so an unset field and its default share a key. Workers
// does not change the result and is left out.
func Key(signal []float64, cfg config.Config) ([]byte, error) {
	cfg = cfg.Normalize()
	cfg.Workers = 0

	encoded, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	h := sha256.New()
	h.Write(encoded)
	var buf [8]byte
	for _, v := range signal {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	key := make([]byte, 0, len(keyPrefix)+sha256.Size)
	key = append(key, keyPrefix...)
	return h.Sum(key), nil
}

// Get returns the stored features of signal under cfg
func (c *FeatureCache) Get(signal []float64, cfg config.Config) (topology.FeatureVector, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrClosed
	}
	key, err := Key(signal, cfg)
	if err != nil {
		return nil, false, err
	}

	var entry *Entry
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			e, err := decodeEntry(val)
			if err != nil {
				return fmt.Errorf("entry decode error: %w", err)
			}
			entry = e
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error(err, "Failed to read cached features")
		return nil, false, err
	}

	c.hits.Add(1)
	return topology.FeatureVector(entry.Features), true, nil
}

// Put stores features of signal under cfg, replacing any previous entry
func (c *FeatureCache) Put(signal []float64, cfg config.Config, features topology.FeatureVector) error {
	if c.closed.Load() {
		return ErrClosed
	}
	key, err := Key(signal, cfg)
	if err != nil {
		return err
	}

	value, err := encodeEntry(&Entry{
		Features:  features,
		Config:    cfg.Normalize(),
		Samples:   len(signal),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}); err != nil {
		c.logger.Error(err, "Failed to store features", logging.Fields{"samples": len(signal)})
		return fmt.Errorf("write error: %w", err)
	}
	return nil
}

// GetOrExtract returns cached features of ts, extracting and storing them on
// a miss. A failed write is logged and the fresh features are still returned.
func (c *FeatureCache) GetOrExtract(ctx context.Context, ts *topology.TimeSeries, cfg config.Config) (topology.FeatureVector, error) {
	signal := ts.Signal()

	if features, ok, err := c.Get(signal, cfg); err != nil {
		return nil, err
	} else if ok {
		return features, nil
	}

	features, err := ts.GetFeatures(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := c.Put(signal, cfg, features); err != nil {
		c.logger.Warn("Extracted features were not cached", logging.Fields{"error": err.Error()})
	}
	return features, nil
}

// Len counts the stored entries
func (c *FeatureCache) Len() (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Stats returns the hit and miss counts since the cache was opened
func (c *FeatureCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close closes the database. Closing twice is a no-op.
func (c *FeatureCache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	hits, misses := c.Stats()
	c.logger.Info("Feature cache closing", logging.Fields{"hits": hits, "misses": misses})

	if err := c.db.Close(); err != nil {
		c.logger.Error(err, "Failed to close feature cache")
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}

func encodeEntry(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("entry encode error: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e)
	return &e, err
}

// badgerLogger routes badger's printf-style log lines into our logger.
// Badger is chatty at info level so those lines are demoted to debug.
type badgerLogger struct {
	logger logging.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(errors.New(line(format, args)), "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(line(format, args))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug(line(format, args))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(line(format, args))
}

func line(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
