/*
Memcached-backed sync records, for running more than one tugd against
the same mirror (records survive a daemon restart, and a cache miss
just means the tag is re-checked next cycle).

memcached may still evict entries under memory pressure. We recover
from that: a missing record looks like a first discovery, and the
digest comparison against the mirror makes the extra check a no-op.
*/
package mirror

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
)

const (
	// Bump the version number if the record format changes.
	recordKeyPrefix = "tugboatrecordv1"
	indexKey        = recordKeyPrefix + "|tags"

	recordExpiry = 0 // no expiry; latest record per tag is retained
)

// MemcacheStore keeps sync records in memcached. The tag index key is
// maintained without CAS: exactly one controller owns a repository's
// records at a time, which is the same serialization the deployment
// lock guarantees.
type MemcacheStore struct {
	client *memcache.Client
	repo   string
}

// NewMemcacheStore connects to the given memcached hosts, namespacing
// keys by the full repository path (there might be duplicate tags
// from other repositories).
func NewMemcacheStore(repo string, timeout time.Duration, hosts ...string) *MemcacheStore {
	client := memcache.New(hosts...)
	client.Timeout = timeout
	return &MemcacheStore{client: client, repo: repo}
}

func (s *MemcacheStore) key(tag string) string {
	return strings.Join([]string{recordKeyPrefix, s.repo, tag}, "|")
}

func (s *MemcacheStore) Get(tag string) (Record, bool, error) {
	item, err := s.client.Get(s.key(tag))
	if err == memcache.ErrCacheMiss {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrap(err, "fetching sync record")
	}
	var rec Record
	if err := json.Unmarshal(item.Value, &rec); err != nil {
		return Record{}, false, errors.Wrap(err, "decoding sync record")
	}
	return rec, true, nil
}

func (s *MemcacheStore) Set(rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(&memcache.Item{Key: s.key(rec.Tag), Value: b, Expiration: recordExpiry}); err != nil {
		return errors.Wrap(err, "storing sync record")
	}
	return s.addToIndex(rec.Tag)
}

func (s *MemcacheStore) addToIndex(tag string) error {
	tags, err := s.indexTags()
	if err != nil {
		return err
	}
	for _, t := range tags {
		if t == tag {
			return nil
		}
	}
	tags = append(tags, tag)
	b, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{Key: s.indexKeyFor(), Value: b, Expiration: recordExpiry})
}

func (s *MemcacheStore) indexKeyFor() string {
	return strings.Join([]string{indexKey, s.repo}, "|")
}

func (s *MemcacheStore) indexTags() ([]string, error) {
	item, err := s.client.Get(s.indexKeyFor())
	if err == memcache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetching record index")
	}
	var tags []string
	if err := json.Unmarshal(item.Value, &tags); err != nil {
		return nil, errors.Wrap(err, "decoding record index")
	}
	return tags, nil
}

func (s *MemcacheStore) All() ([]Record, error) {
	tags, err := s.indexTags()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(tags))
	for _, tag := range tags {
		rec, ok, err := s.Get(tag)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

var _ Store = &MemcacheStore{}
