package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	"gocloud.dev/gcerrors"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// BlobStore is a Store backed by a gocloud.dev blob bucket.  Metadata of a result is
// kept under "metadata/<id>" and its labels under "volume/<id>".
type BlobStore struct {
	ref         string
	compression dvid.Compression
	bucket      *blob.Bucket
}

// blobKey returns the bucket key of the given type for a result ID.
func blobKey(t KeyType, id string) string {
	return blobPrefix(t) + id
}

func blobPrefix(t KeyType) string {
	if t == KeyMetadata {
		return "metadata/"
	}
	return "volume/"
}

// OpenBlob returns a store in the bucket referenced by c.BlobURL, e.g.,
// "file:///var/reseg" or "mem://".  Directories of file buckets are created if
// missing, in which case created is true.
func OpenBlob(c Config) (db *BlobStore, created bool, err error) {
	compression, err := c.compression()
	if err != nil {
		return nil, false, err
	}
	if c.BlobURL == "" {
		return nil, false, fmt.Errorf("%q must be specified for blob store configuration: %w", "blob_url", dvid.ErrInvalidArgument)
	}
	u, err := url.Parse(c.BlobURL)
	if err != nil {
		return nil, false, fmt.Errorf("bad blob_url %q (%v): %w", c.BlobURL, err, dvid.ErrInvalidArgument)
	}
	switch u.Scheme {
	case "mem":
		created = true
	case "file":
		if _, err := os.Stat(u.Path); os.IsNotExist(err) {
			dvid.Infof("Bucket directory not already at path (%s). Creating directory...\n", u.Path)
			created = true
			if err := os.MkdirAll(u.Path, 0744); err != nil {
				return nil, true, fmt.Errorf("can't make directory at %s: %v", u.Path, err)
			}
		}
	}
	bucket, err := blob.OpenBucket(context.Background(), c.BlobURL)
	if err != nil {
		dvid.Errorf("Can't open bucket reference @ %q: %v\n", c.BlobURL, err)
		return nil, created, err
	}
	db = &BlobStore{ref: c.BlobURL, compression: compression, bucket: bucket}
	dvid.Infof("Opened %s with %s compression\n", db, compression)
	return db, created, nil
}

func (db *BlobStore) String() string {
	return fmt.Sprintf("blob @ %s", db.ref)
}

// Close closes the bucket.
func (db *BlobStore) Close() error {
	if db == nil || db.bucket == nil {
		return nil
	}
	err := db.bucket.Close()
	db.bucket = nil
	dvid.Infof("Closed %s\n", db)
	return err
}

func (db *BlobStore) checkOpen(op string) error {
	if db == nil || db.bucket == nil {
		return fmt.Errorf("can't call %s on closed or nil blob store", op)
	}
	return nil
}

// Put writes the labels before the metadata, so only complete results are listed.
func (db *BlobStore) Put(info Result, vol *volume.Volume) (Result, error) {
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
	ctx := context.Background()
	if err := db.bucket.WriteAll(ctx, blobKey(KeyVolume, info.ID), data, nil); err != nil {
		return info, err
	}
	if err := db.bucket.WriteAll(ctx, blobKey(KeyMetadata, info.ID), meta, nil); err != nil {
		return info, err
	}
	dvid.Debugf("Stored %s in %s\n", info, db)
	return info, nil
}

func (db *BlobStore) get(key string) (v []byte, found bool, err error) {
	v, err = db.bucket.ReadAll(context.Background(), key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Info returns the metadata of a stored volume.
func (db *BlobStore) Info(id string) (Result, error) {
	if err := db.checkOpen("Info"); err != nil {
		return Result{}, err
	}
	if strings.Contains(id, "/") {
		return Result{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	meta, found, err := db.get(blobKey(KeyMetadata, id))
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	return decodeResult(meta)
}

// Get returns the metadata and labels of a stored volume.
func (db *BlobStore) Get(id string) (Result, *volume.Volume, error) {
	info, err := db.Info(id)
	if err != nil {
		return info, nil, err
	}
	data, found, err := db.get(blobKey(KeyVolume, id))
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
func (db *BlobStore) Delete(id string) error {
	if err := db.checkOpen("Delete"); err != nil {
		return err
	}
	if strings.Contains(id, "/") {
		return nil
	}
	ctx := context.Background()
	for _, t := range []KeyType{KeyMetadata, KeyVolume} {
		if err := db.bucket.Delete(ctx, blobKey(t, id)); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return err
		}
	}
	return nil
}

// List returns the metadata of all stored volumes in key order.
func (db *BlobStore) List() ([]Result, error) {
	if err := db.checkOpen("List"); err != nil {
		return nil, err
	}
	ctx := context.Background()
	var results []Result
	it := db.bucket.List(&blob.ListOptions{Prefix: blobPrefix(KeyMetadata)})
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		meta, err := db.bucket.ReadAll(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		r, err := decodeResult(meta)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
