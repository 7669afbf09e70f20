package storage

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

const (
	// DefaultSyncInterval is how often buffered writes are synced to disk.
	DefaultSyncInterval = 30 * time.Second

	// DefaultCompression is the compression of stored labels if none is configured.
	DefaultCompression = dvid.Zstd
)

// Config holds the [store] settings of a result store.  A set BlobURL selects a blob
// bucket; otherwise results are kept in a badger database.
type Config struct {
	// BlobURL references a gocloud.dev bucket, e.g., "file:///var/reseg" or "mem://".
	BlobURL string `toml:"blob_url"`

	// Path is the directory of the database.  It is created if missing.
	Path string

	// InMemory keeps everything in memory and ignores Path.
	InMemory bool `toml:"in_memory"`

	ReadOnly         bool  `toml:"read_only"`
	ValueThreshold   int64 `toml:"value_threshold"`
	ValueLogFileSize int64 `toml:"value_log_file_size"`

	// Compression of stored labels: "none", "snappy" or "zstd".
	Compression string
}

func (c Config) options() (badger.Options, error) {
	var opts badger.Options
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if c.Path == "" {
			return opts, fmt.Errorf("%q must be specified for badger store configuration: %w", "path", dvid.ErrInvalidArgument)
		}
		opts = badger.DefaultOptions(c.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithSyncWrites(false).WithLogger(badgerLogger{})
	if c.ReadOnly {
		opts = opts.WithReadOnly(true)
	}
	if c.ValueThreshold > 0 {
		opts = opts.WithValueThreshold(c.ValueThreshold)
	}
	if c.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(c.ValueLogFileSize)
	}
	return opts, nil
}

// badgerLogger routes badger's messages through the package logger, demoting badger's
// chatty info messages to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { dvid.Errorf("badger: "+format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { dvid.Warningf("badger: "+format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { dvid.Debugf("badger: "+format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { dvid.Debugf("badger: "+format, args...) }

// BadgerStore is a Store backed by a badger database.
type BadgerStore struct {
	directory   string
	compression dvid.Compression
	bdp         *badger.DB

	// stopSyncCh is used to signal the sync goroutine to stop.
	stopSyncCh chan struct{}
	syncDone   chan struct{}
}

// Open returns a badger store, creating the database directory if needed.  created is
// true if no database existed at the configured path.
func Open(c Config) (db *BadgerStore, created bool, err error) {
	compression, err := c.compression()
	if err != nil {
		return nil, false, err
	}
	opts, err := c.options()
	if err != nil {
		return nil, false, err
	}
	if !c.InMemory {
		if _, err := os.Stat(c.Path); os.IsNotExist(err) {
			dvid.Infof("Database not already at path (%s). Creating directory...\n", c.Path)
			created = true
			if err := os.MkdirAll(c.Path, 0744); err != nil {
				return nil, true, fmt.Errorf("can't make directory at %s: %v", c.Path, err)
			}
		}
	} else {
		created = true
	}

	timedLog := dvid.NewTimeLog()
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, created, err
	}
	db = &BadgerStore{
		directory:   c.Path,
		compression: compression,
		bdp:         bdp,
		stopSyncCh:  make(chan struct{}),
		syncDone:    make(chan struct{}),
	}
	if c.InMemory || c.ReadOnly {
		close(db.syncDone)
	} else {
		go db.syncPeriodically(DefaultSyncInterval)
	}
	timedLog.Infof("Opened %s with %s compression", db, compression)
	return db, created, nil
}

func (db *BadgerStore) String() string {
	if db.directory == "" {
		return "badger @ memory"
	}
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Periodically sync to prevent too many writes from being buffered
// if server crashes.
func (db *BadgerStore) syncPeriodically(interval time.Duration) {
	defer close(db.syncDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			dvid.Debugf("Stopping sync goroutine for %s\n", db)
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				dvid.Errorf("Unable to sync %s: %v\n", db, err)
			}
		}
	}
}

// Close stops the sync goroutine and closes the database.
func (db *BadgerStore) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	close(db.stopSyncCh)
	<-db.syncDone
	err := db.bdp.Close()
	db.bdp = nil
	dvid.Infof("Closed %s\n", db)
	return err
}

func (db *BadgerStore) checkOpen(op string) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call %s on closed or nil badger store", op)
	}
	return nil
}

// Put serializes vol with the store's compression and a CRC32 checksum and stores it
// with its metadata in a single transaction.
func (db *BadgerStore) Put(info Result, vol *volume.Volume) (Result, error) {
	if err := db.checkOpen("Put"); err != nil {
		return info, err
	}
	if vol == nil {
		return info, fmt.Errorf("no volume to store: %w", dvid.ErrInvalidArgument)
	}
	data, err := dvid.SerializeData(vol.Bytes(), db.compression, dvid.CRC32)
	if err != nil {
		return info, err
	}
	info.ID = NewID()
	info.Size = vol.Size
	info.Compression = db.compression
	info.Bytes = len(data)
	info.Created = time.Now().UTC()
	meta, err := encodeResult(info)
	if err != nil {
		return info, err
	}
	err = db.bdp.Update(func(txn *badger.Txn) error {
		if err := txn.Set(ConstructKey(KeyVolume, info.ID), data); err != nil {
			return err
		}
		return txn.Set(ConstructKey(KeyMetadata, info.ID), meta)
	})
	if err != nil {
		return info, err
	}
	dvid.Debugf("Stored %s\n", info)
	return info, nil
}

func (db *BadgerStore) get(key []byte) (v []byte, found bool, err error) {
	err = db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		v, err = item.ValueCopy(nil)
		return err
	})
	return
}

// Info returns the metadata of a stored volume.
func (db *BadgerStore) Info(id string) (Result, error) {
	if err := db.checkOpen("Info"); err != nil {
		return Result{}, err
	}
	meta, found, err := db.get(ConstructKey(KeyMetadata, id))
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	return decodeResult(meta)
}

// Get returns the metadata and labels of a stored volume.
func (db *BadgerStore) Get(id string) (Result, *volume.Volume, error) {
	info, err := db.Info(id)
	if err != nil {
		return info, nil, err
	}
	data, found, err := db.get(ConstructKey(KeyVolume, id))
	if err != nil {
		return info, nil, err
	}
	if !found {
		return info, nil, fmt.Errorf("labels of id %q: %w", id, ErrNotFound)
	}
	vol, err := deserializeVolume(info, data)
	return info, vol, err
}

// Delete removes the metadata and labels of a stored volume.
func (db *BadgerStore) Delete(id string) error {
	if err := db.checkOpen("Delete"); err != nil {
		return err
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(ConstructKey(KeyVolume, id)); err != nil {
			return err
		}
		return txn.Delete(ConstructKey(KeyMetadata, id))
	})
}

// List returns the metadata of all stored volumes in key order.
func (db *BadgerStore) List() ([]Result, error) {
	if err := db.checkOpen("List"); err != nil {
		return nil, err
	}
	var results []Result
	err := db.bdp.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := KeyPrefix(KeyMetadata)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			meta, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			r, err := decodeResult(meta)
			if err != nil {
				return err
			}
			results = append(results, r)
		}
		return nil
	})
	return results, err
}
