// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key layout. Composite keys end with the record identity so prefix scans
// enumerate per-instance records without a secondary index.
const (
	prefixFormat      = "tracking:format:"
	prefixGroup       = "tracking:group:"
	prefixProfile     = "tracking:profile:"
	prefixQualitySize = "qualitysize:"
	prefixTemplate    = "template:"
	prefixConflict    = "conflict:"
)

// BadgerStore implements Store over a shared badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a store over an open badger database. The caller
// owns the database lifecycle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) put(key string, rec any) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
}

func (s *BadgerStore) get(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get record %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

func (s *BadgerStore) delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// scan invokes fn with each raw value under prefix.
func (s *BadgerStore) scan(prefix string, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// deletePrefix removes every key under prefix.
func (s *BadgerStore) deletePrefix(prefix string) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Format tracking.

func formatKey(instanceID, trashID string) string {
	return prefixFormat + instanceID + ":" + trashID
}

func (s *BadgerStore) PutFormatTracking(rec *FormatTracking) error {
	return s.put(formatKey(rec.InstanceID, rec.TrashID), rec)
}

func (s *BadgerStore) GetFormatTracking(instanceID, trashID string) (*FormatTracking, error) {
	var rec FormatTracking
	if err := s.get(formatKey(instanceID, trashID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BadgerStore) ListFormatTracking(instanceID string) ([]FormatTracking, error) {
	var recs []FormatTracking
	err := s.scan(prefixFormat+instanceID+":", func(val []byte) error {
		var rec FormatTracking
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

func (s *BadgerStore) DeleteFormatTracking(instanceID, trashID string) error {
	return s.delete(formatKey(instanceID, trashID))
}

// Group tracking.

func groupKey(instanceID, groupTrashID string) string {
	return prefixGroup + instanceID + ":" + groupTrashID
}

func (s *BadgerStore) PutGroupTracking(rec *GroupTracking) error {
	return s.put(groupKey(rec.InstanceID, rec.GroupTrashID), rec)
}

func (s *BadgerStore) GetGroupTracking(instanceID, groupTrashID string) (*GroupTracking, error) {
	var rec GroupTracking
	if err := s.get(groupKey(instanceID, groupTrashID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BadgerStore) ListGroupTracking(instanceID string) ([]GroupTracking, error) {
	var recs []GroupTracking
	err := s.scan(prefixGroup+instanceID+":", func(val []byte) error {
		var rec GroupTracking
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

func (s *BadgerStore) DeleteGroupTracking(instanceID, groupTrashID string) error {
	return s.delete(groupKey(instanceID, groupTrashID))
}

// Profile tracking.

func profileKey(instanceID, profileTrashID string) string {
	return prefixProfile + instanceID + ":" + profileTrashID
}

func (s *BadgerStore) PutProfileTracking(rec *ProfileTracking) error {
	return s.put(profileKey(rec.InstanceID, rec.ProfileTrashID), rec)
}

func (s *BadgerStore) GetProfileTracking(instanceID, profileTrashID string) (*ProfileTracking, error) {
	var rec ProfileTracking
	if err := s.get(profileKey(instanceID, profileTrashID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BadgerStore) ListProfileTracking(instanceID string) ([]ProfileTracking, error) {
	var recs []ProfileTracking
	err := s.scan(prefixProfile+instanceID+":", func(val []byte) error {
		var rec ProfileTracking
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

func (s *BadgerStore) DeleteProfileTracking(instanceID, profileTrashID string) error {
	return s.delete(profileKey(instanceID, profileTrashID))
}

// Quality-size mappings. One per instance.

func (s *BadgerStore) PutQualitySizeMapping(rec *QualitySizeMapping) error {
	return s.put(prefixQualitySize+rec.InstanceID, rec)
}

func (s *BadgerStore) GetQualitySizeMapping(instanceID string) (*QualitySizeMapping, error) {
	var rec QualitySizeMapping
	if err := s.get(prefixQualitySize+instanceID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BadgerStore) ListQualitySizeMappings() ([]QualitySizeMapping, error) {
	var recs []QualitySizeMapping
	err := s.scan(prefixQualitySize, func(val []byte) error {
		var rec QualitySizeMapping
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

// Templates.

func (s *BadgerStore) PutTemplate(tpl *Template) error {
	return s.put(prefixTemplate+tpl.ID, tpl)
}

func (s *BadgerStore) GetTemplate(id string) (*Template, error) {
	var tpl Template
	if err := s.get(prefixTemplate+id, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *BadgerStore) ListTemplates() ([]Template, error) {
	var tpls []Template
	err := s.scan(prefixTemplate, func(val []byte) error {
		var tpl Template
		if err := json.Unmarshal(val, &tpl); err != nil {
			return err
		}
		tpls = append(tpls, tpl)
		return nil
	})
	return tpls, err
}

func (s *BadgerStore) DeleteTemplate(id string) error {
	return s.delete(prefixTemplate + id)
}

// Score conflicts.

func (s *BadgerStore) PutScoreConflict(rec *ScoreConflict) error {
	return s.put(prefixConflict+rec.InstanceID+":"+rec.TrashID, rec)
}

func (s *BadgerStore) ListScoreConflicts(instanceID string) ([]ScoreConflict, error) {
	var recs []ScoreConflict
	err := s.scan(prefixConflict+instanceID+":", func(val []byte) error {
		var rec ScoreConflict
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

func (s *BadgerStore) ClearScoreConflicts(instanceID string) error {
	return s.deletePrefix(prefixConflict + instanceID + ":")
}
