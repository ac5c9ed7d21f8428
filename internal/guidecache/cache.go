// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package guidecache stores compressed snapshots of upstream guide data
// keyed by (service, config type), with staleness tracking and corruption
// self-healing.
//
// Corruption is not fatal: a snapshot that fails to decompress or parse is
// deleted and signaled with ErrCorrupted so the caller re-fetches; the next
// Get on the same key reports ErrNotCached, not another corruption error.
package guidecache

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// keyPrefix namespaces cache entries within the shared badger store.
const keyPrefix = "guidecache:"

// DefaultStalenessWindow is how long a snapshot counts as fresh after its
// last upstream check.
const DefaultStalenessWindow = 12 * time.Hour

var (
	// ErrNotCached signals that no snapshot exists for the key. Callers
	// must treat this as "never fetched" and trigger a fetch, not as an
	// error condition.
	ErrNotCached = errors.New("guide data not cached")

	// ErrCorrupted signals that the stored snapshot failed to decompress
	// or parse and has been deleted. Callers should re-fetch.
	ErrCorrupted = errors.New("guide cache entry corrupted")
)

// entry is the stored form of one snapshot.
type entry struct {
	// Payload is base64(gzip(json)) when Compressed, plain JSON otherwise.
	Payload       string    `json:"payload"`
	Compressed    bool      `json:"compressed"`
	Version       int       `json:"version"`
	CommitHash    string    `json:"commitHash,omitempty"`
	FetchedAt     time.Time `json:"fetchedAt"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}

// Status reports one snapshot's bookkeeping for the management surface.
type Status struct {
	Service       string    `json:"service"`
	ConfigType    string    `json:"configType"`
	Version       int       `json:"version"`
	ItemCount     int       `json:"itemCount"`
	Fresh         bool      `json:"fresh"`
	CommitHash    string    `json:"commitHash,omitempty"`
	FetchedAt     time.Time `json:"fetchedAt"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`

	// OfficialCount/CustomCount break items down by source when a
	// supplementary guide source is blended in. Zero when untagged.
	OfficialCount int `json:"officialCount,omitempty"`
	CustomCount   int `json:"customCount,omitempty"`
}

// Config configures a cache Manager.
type Config struct {
	// StalenessWindow is how long a snapshot counts as fresh. Default 12h.
	StalenessWindow time.Duration

	// Compress gzips payloads before storage. Default on in production;
	// disabling stores plain JSON.
	Compress bool
}

// Manager is the guide snapshot cache.
type Manager struct {
	db     *badger.DB
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a cache manager over the shared badger store.
func NewManager(db *badger.DB, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = DefaultStalenessWindow
	}
	return &Manager{
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("component", "guide-cache").Logger(),
		now:    time.Now,
	}
}

func cacheKey(service, configType string) []byte {
	return []byte(keyPrefix + service + ":" + configType)
}

// Get decodes the stored snapshot for (service, configType) into out.
// Returns ErrNotCached when no snapshot exists. A snapshot that fails to
// decode is deleted and ErrCorrupted is returned; partially-parsed data is
// never handed out.
func (m *Manager) Get(service, configType string, out any) error {
	ent, err := m.load(service, configType)
	if err != nil {
		return err
	}

	raw, err := decodePayload(ent)
	if err == nil {
		err = json.Unmarshal(raw, out)
	}
	if err != nil {
		m.logger.Warn().Err(err).
			Str("service", service).
			Str("config_type", configType).
			Msg("Corrupted guide cache entry, deleting")
		if delErr := m.delete(service, configType); delErr != nil {
			m.logger.Error().Err(delErr).Msg("Failed to delete corrupted cache entry")
		}
		return fmt.Errorf("%w: %s/%s", ErrCorrupted, service, configType)
	}

	return nil
}

// Set serializes data and upserts the snapshot for (service, configType),
// incrementing the version on update and stamping both timestamps.
func (m *Manager) Set(service, configType string, data any, commitHash string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal guide payload: %w", err)
	}

	payload := string(raw)
	if m.cfg.Compress {
		payload, err = compress(raw)
		if err != nil {
			return fmt.Errorf("compress guide payload: %w", err)
		}
	}

	now := m.now()
	return m.db.Update(func(txn *badger.Txn) error {
		version := 1
		if prev, err := readEntry(txn, service, configType); err == nil {
			version = prev.Version + 1
		}

		ent := entry{
			Payload:       payload,
			Compressed:    m.cfg.Compress,
			Version:       version,
			CommitHash:    commitHash,
			FetchedAt:     now,
			LastCheckedAt: now,
		}
		buf, err := json.Marshal(&ent)
		if err != nil {
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		return txn.Set(cacheKey(service, configType), buf)
	})
}

// IsFresh reports whether the snapshot's last upstream check is within the
// staleness window. Missing snapshots are never fresh.
func (m *Manager) IsFresh(service, configType string) bool {
	ent, err := m.load(service, configType)
	if err != nil {
		return false
	}
	return m.now().Sub(ent.LastCheckedAt) < m.cfg.StalenessWindow
}

// TouchCache updates LastCheckedAt without altering the payload, marking
// "checked upstream, still valid".
func (m *Manager) TouchCache(service, configType string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		ent, err := readEntry(txn, service, configType)
		if err != nil {
			return err
		}
		ent.LastCheckedAt = m.now()
		buf, err := json.Marshal(ent)
		if err != nil {
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		return txn.Set(cacheKey(service, configType), buf)
	})
}

// CleanupStale deletes snapshots whose last check exceeds twice the
// staleness window. Returns the number of entries removed. This is a
// maintenance sweep, distinct from simple staleness.
func (m *Manager) CleanupStale() (int, error) {
	cutoff := m.now().Add(-2 * m.cfg.StalenessWindow)

	var stale [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var ent entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ent)
			})
			if err != nil {
				// Unreadable entries are swept too.
				stale = append(stale, item.KeyCopy(nil))
				continue
			}
			if ent.LastCheckedAt.Before(cutoff) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache entries: %w", err)
	}

	count := 0
	for _, key := range stale {
		err := m.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			m.logger.Warn().Err(err).Str("key", string(key)).Msg("Failed to delete stale cache entry")
			continue
		}
		count++
	}
	return count, nil
}

// GetStatus reports one snapshot's bookkeeping. Returns ErrNotCached when
// no snapshot exists.
func (m *Manager) GetStatus(service, configType string) (*Status, error) {
	ent, err := m.load(service, configType)
	if err != nil {
		return nil, err
	}
	return m.status(service, configType, ent), nil
}

// GetAllStatuses reports bookkeeping for every stored snapshot.
func (m *Manager) GetAllStatuses() ([]Status, error) {
	var statuses []Status
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			var ent entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ent)
			})
			if err != nil {
				continue
			}

			service, configType := splitKey(key)
			statuses = append(statuses, *m.status(service, configType, &ent))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cache entries: %w", err)
	}
	return statuses, nil
}

// status decodes the payload just far enough to count items and break
// them down by source. A count mismatch is logged, never fatal.
func (m *Manager) status(service, configType string, ent *entry) *Status {
	st := &Status{
		Service:       service,
		ConfigType:    configType,
		Version:       ent.Version,
		CommitHash:    ent.CommitHash,
		FetchedAt:     ent.FetchedAt,
		LastCheckedAt: ent.LastCheckedAt,
		Fresh:         m.now().Sub(ent.LastCheckedAt) < m.cfg.StalenessWindow,
	}

	raw, err := decodePayload(ent)
	if err != nil {
		return st
	}

	var items []struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return st
	}

	st.ItemCount = len(items)
	for _, item := range items {
		switch item.Source {
		case "official":
			st.OfficialCount++
		case "custom":
			st.CustomCount++
		}
	}
	if tagged := st.OfficialCount + st.CustomCount; tagged > 0 && tagged != st.ItemCount {
		m.logger.Warn().
			Str("service", service).
			Str("config_type", configType).
			Int("total", st.ItemCount).
			Int("tagged", tagged).
			Msg("Guide cache source breakdown does not sum to total")
	}

	return st
}

func (m *Manager) load(service, configType string) (*entry, error) {
	var ent *entry
	err := m.db.View(func(txn *badger.Txn) error {
		e, err := readEntry(txn, service, configType)
		if err != nil {
			return err
		}
		ent = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ent, nil
}

func (m *Manager) delete(service, configType string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(service, configType))
	})
}

func readEntry(txn *badger.Txn, service, configType string) (*entry, error) {
	item, err := txn.Get(cacheKey(service, configType))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	var ent entry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ent)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &ent, nil
}

// decodePayload reverses the storage encoding: base64 + gzip when the
// entry is compressed, plain bytes otherwise.
func decodePayload(ent *entry) ([]byte, error) {
	if !ent.Compressed {
		return []byte(ent.Payload), nil
	}

	packed, err := base64.StdEncoding.DecodeString(ent.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("open gzip payload: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return raw, nil
}

func compress(raw []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// splitKey recovers (service, configType) from a storage key.
func splitKey(key string) (string, string) {
	rest := key[len(keyPrefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i], rest[i+1:]
		}
	}
	return rest, ""
}
