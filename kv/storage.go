package kv

import (
	"iter"

	"github.com/indigo-web/utils/strcomp"
)

type Pair struct {
	Key, Value string
}

// Storage is an ordered multimap of (string, string) pairs. Keys are compared
// case-insensitively, while insertion order and the original spelling are preserved. It acts
// as a map but uses linear search instead, which proves to be more efficient on relatively
// low amount of entries, which is the case for HTTP headers.
type Storage struct {
	pairs []Pair
}

func New() *Storage {
	return new(Storage)
}

// NewPrealloc returns an instance of Storage with pre-allocated underlying storage.
func NewPrealloc(n int) *Storage {
	return &Storage{
		pairs: make([]Pair, 0, n),
	}
}

// NewFromMap returns a new instance with already inserted values from given map.
// Note: as maps are unordered, resulting underlying structure will also contain unordered
// pairs.
func NewFromMap(m map[string][]string) *Storage {
	kv := NewPrealloc(len(m))

	for key, values := range m {
		for _, value := range values {
			kv.Add(key, value)
		}
	}

	return kv
}

// Add adds a new pair of key and value.
func (s *Storage) Add(key, value string) *Storage {
	s.pairs = append(s.pairs, Pair{
		Key:   key,
		Value: value,
	})
	return s
}

// Set replaces all the values of the key by a single one. The pair takes the position of
// the first occurrence of the key, or is appended if there were none.
func (s *Storage) Set(key, value string) *Storage {
	for i, pair := range s.pairs {
		if strcomp.EqualFold(pair.Key, key) {
			s.pairs[i] = Pair{Key: key, Value: value}
			s.pairs = append(s.pairs[:i+1], deleteKey(s.pairs[i+1:], key)...)
			return s
		}
	}

	return s.Add(key, value)
}

// Delete removes all the pairs of the key.
func (s *Storage) Delete(key string) *Storage {
	s.pairs = deleteKey(s.pairs, key)
	return s
}

// Value returns the first value, corresponding to the key. Otherwise, empty string is returned
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns either the first value corresponding to the key or custom value, defined
// via the second parameter.
func (s *Storage) ValueOr(key, or string) string {
	value, found := s.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns the first value and a bool, indicating whether the value was found.
func (s *Storage) Get(key string) (value string, found bool) {
	for _, pair := range s.pairs {
		if strcomp.EqualFold(key, pair.Key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Values returns an iterator over all values of the key.
func (s *Storage) Values(key string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, pair := range s.pairs {
			if strcomp.EqualFold(pair.Key, key) && !yield(pair.Value) {
				return
			}
		}
	}
}

// ValuesSlice collects all values of the key. Returns nil if key doesn't exist.
func (s *Storage) ValuesSlice(key string) (values []string) {
	for value := range s.Values(key) {
		values = append(values, value)
	}

	return values
}

// Keys returns an iterator over unique keys in order of their first appearance. The keys
// are collected before iterating, therefore the storage may be modified in the loop body.
func (s *Storage) Keys() iter.Seq[string] {
	var unique []string

	for _, pair := range s.pairs {
		if !contains(unique, pair.Key) {
			unique = append(unique, pair.Key)
		}
	}

	return func(yield func(string) bool) {
		for _, key := range unique {
			if !yield(key) {
				return
			}
		}
	}
}

// Pairs returns an iterator over the pairs.
func (s *Storage) Pairs() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, pair := range s.pairs {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Has indicates, whether there's an entry of the key.
func (s *Storage) Has(key string) bool {
	_, found := s.Get(key)
	return found
}

// Len returns a number of stored pairs.
func (s *Storage) Len() int {
	return len(s.pairs)
}

func (s *Storage) Empty() bool {
	return s.Len() == 0
}

// Expose exposes the underlying pairs slice.
func (s *Storage) Expose() []Pair {
	return s.pairs
}

// Clear all the entries. However, all the allocated space won't be freed.
func (s *Storage) Clear() *Storage {
	s.pairs = s.pairs[:0]
	return s
}

func deleteKey(pairs []Pair, key string) []Pair {
	n := 0

	for _, pair := range pairs {
		if !strcomp.EqualFold(pair.Key, key) {
			pairs[n] = pair
			n++
		}
	}

	return pairs[:n]
}

func contains(collection []string, key string) bool {
	for _, element := range collection {
		if strcomp.EqualFold(element, key) {
			return true
		}
	}

	return false
}
