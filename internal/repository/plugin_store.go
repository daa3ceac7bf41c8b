package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
)

const installedBucket = "installed_plugins"

// BoltPluginStore indexes materialized plugin bundles by GUID in a local bbolt file.
type BoltPluginStore struct {
	db *bolt.DB
}

// OpenBoltPluginStore opens (creating if needed) the index at path.
func OpenBoltPluginStore(path string) (*BoltPluginStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir plugin store path: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open plugin store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(installedBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltPluginStore{db: db}, nil
}

func (s *BoltPluginStore) Save(_ context.Context, p models.InstalledPlugin) error {
	if p.GUID == "" {
		return fmt.Errorf("save installed plugin: guid is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal installed plugin: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(installedBucket)).Put([]byte(p.GUID), data)
	})
}

func (s *BoltPluginStore) Get(_ context.Context, guid string) (*models.InstalledPlugin, error) {
	var rec *models.InstalledPlugin
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(installedBucket)).Get([]byte(guid))
		if len(data) == 0 {
			return nil
		}
		var p models.InstalledPlugin
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		rec = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("installed plugin %s: %w", guid, models.ErrPluginNotFound)
	}
	return rec, nil
}

// List returns every record in GUID order. Undecodable records are skipped.
func (s *BoltPluginStore) List(_ context.Context) ([]models.InstalledPlugin, error) {
	out := []models.InstalledPlugin{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(installedBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var p models.InstalledPlugin
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func (s *BoltPluginStore) Delete(_ context.Context, guid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(installedBucket)).Delete([]byte(guid))
	})
}

func (s *BoltPluginStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ repository.PluginStore = (*BoltPluginStore)(nil)
