package server

import (
	"github.com/coocood/freecache"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/imageio"
	"github.com/janelia-flyem/reseg/volume"
)

// volumeCache keeps recently used volumes, snappy-compressed in .lbv form, and JSON
// graphs in a fixed-size freecache.
type volumeCache struct {
	cache *freecache.Cache
}

func newVolumeCache(mb int) *volumeCache {
	return &volumeCache{cache: freecache.NewCache(mb * dvid.Mega)}
}

func volumeKey(id string) []byte {
	return []byte("vol/" + id)
}

func (vc *volumeCache) getVolume(id string) *volume.Volume {
	data, err := vc.cache.Get(volumeKey(id))
	if err != nil {
		if err != freecache.ErrNotFound {
			dvid.Errorf("Volume cache get of %s: %v\n", id, err)
		}
		return nil
	}
	vol, err := imageio.DecodeLabelVolume(data)
	if err != nil {
		dvid.Errorf("Bad cached volume %s: %v\n", id, err)
		vc.cache.Del(volumeKey(id))
		return nil
	}
	return vol
}

func (vc *volumeCache) setVolume(id string, vol *volume.Volume) {
	data, err := imageio.EncodeLabelVolume(vol, dvid.Snappy)
	if err != nil {
		dvid.Errorf("Unable to encode volume %s for cache: %v\n", id, err)
		return
	}
	if err := vc.cache.Set(volumeKey(id), data, 0); err != nil {
		// entries larger than 1/1024 of the cache are refused
		dvid.Debugf("Volume %s of %s not cached: %v\n", id, dvid.Bytes(uint64(len(data))), err)
	}
}

func (vc *volumeCache) getBytes(key string) ([]byte, bool) {
	data, err := vc.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (vc *volumeCache) setBytes(key string, data []byte) {
	if err := vc.cache.Set([]byte(key), data, 0); err != nil {
		dvid.Debugf("%s of %s not cached: %v\n", key, dvid.Bytes(uint64(len(data))), err)
	}
}

// remove drops a volume and every graph computed from it.
func (vc *volumeCache) remove(id string) {
	vc.cache.Del(volumeKey(id))
	for _, key := range graphKeys(id) {
		vc.cache.Del([]byte(key))
	}
}

func (vc *volumeCache) stats() map[string]interface{} {
	return map[string]interface{}{
		"entries":   vc.cache.EntryCount(),
		"hit rate":  vc.cache.HitRate(),
		"evacuated": vc.cache.EvacuateCount(),
	}
}
