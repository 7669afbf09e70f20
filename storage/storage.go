/*
Package storage persists label volumes produced by re-segmentation runs so they can be
fetched later by ID, in a badger database or a gocloud.dev blob bucket.  Each result is kept as two key-value pairs: JSON metadata under a
metadata key and the serialized labels under a volume key.  Keys are partitioned by a
leading KeyType byte.
*/
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twinj/uuid"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// KeyType is the first byte of every key and partitions key space.
type KeyType byte

const (
	// KeyMetadata keys hold the JSON-encoded Result of a stored volume.
	KeyMetadata KeyType = iota + 1

	// KeyVolume keys hold the serialized labels of a stored volume.
	KeyVolume
)

func (t KeyType) String() string {
	switch t {
	case KeyMetadata:
		return "Metadata Key Type"
	case KeyVolume:
		return "Volume Key Type"
	default:
		return "Unknown Key Type"
	}
}

// ConstructKey returns the key of the given type for a result ID.
func ConstructKey(t KeyType, id string) []byte {
	key := make([]byte, 1+len(id))
	key[0] = byte(t)
	copy(key[1:], id)
	return key
}

// KeyPrefix returns the prefix shared by all keys of a type.
func KeyPrefix(t KeyType) []byte {
	return []byte{byte(t)}
}

// Result describes a stored label volume.
type Result struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Operation   string           `json:"operation"`
	Size        dvid.Point3d     `json:"size"`
	Compression dvid.Compression `json:"compression"`
	Bytes       int              `json:"bytes"`
	Created     time.Time        `json:"created"`
}

func (r Result) String() string {
	return fmt.Sprintf("result %s (%s, %s, %s)", r.ID, r.Operation, r.Size, dvid.Bytes(uint64(r.Bytes)))
}

// NewID returns a new random result ID.
func NewID() string {
	return fmt.Sprintf("%x", uuid.NewV4().Bytes())
}

// Store is a persistent collection of label volumes.
type Store interface {
	// Put stores vol under a new ID, filling in the ID, Size, Bytes and Created
	// fields of the returned Result.
	Put(info Result, vol *volume.Volume) (Result, error)

	// Get returns the metadata and labels of a stored volume.  Unknown IDs return
	// an error wrapping ErrNotFound.
	Get(id string) (Result, *volume.Volume, error)

	// Info returns only the metadata of a stored volume.
	Info(id string) (Result, error)

	// Delete removes a stored volume.  Deleting an unknown ID is not an error.
	Delete(id string) error

	// List returns the metadata of every stored volume ordered by ID.
	List() ([]Result, error)

	Close() error
}

// ErrNotFound is returned for unknown result IDs.
var ErrNotFound = errors.New("result not found")

// OpenStore opens the blob store if c.BlobURL is set and the badger store otherwise.
func OpenStore(c Config) (Store, bool, error) {
	if c.BlobURL != "" {
		db, created, err := OpenBlob(c)
		if err != nil {
			return nil, created, err
		}
		return db, created, nil
	}
	db, created, err := Open(c)
	if err != nil {
		return nil, created, err
	}
	return db, created, nil
}

func (c Config) compression() (dvid.Compression, error) {
	if c.Compression == "" {
		return DefaultCompression, nil
	}
	return dvid.ParseCompression(c.Compression)
}

// deserializeVolume returns the labels of a stored result, which may not uncompress
// past the size in its metadata.
func deserializeVolume(info Result, data []byte) (*volume.Volume, error) {
	if err := volume.CheckSize(info.Size); err != nil {
		return nil, fmt.Errorf("labels of id %q: %w", info.ID, err)
	}
	raw, _, err := dvid.DeserializeDataLimit(data, int(info.Size.Prod())*4)
	if err != nil {
		return nil, fmt.Errorf("labels of id %q: %w", info.ID, err)
	}
	return volume.FromBytes(info.Size, raw)
}

func encodeResult(r Result) ([]byte, error) {
	return json.Marshal(r)
}

func decodeResult(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("bad stored metadata (%v): %w", err, dvid.ErrUnsupportedFormat)
	}
	return r, nil
}
