package config

import "strings"

// Store is an immutable snapshot of key/value configuration, taken once at
// startup. Values are trimmed; empty values are treated as absent.
type Store struct {
	values map[string]string
}

// StoreFrom builds a Store from a map. The map is copied.
func StoreFrom(m map[string]string) Store {
	values := make(map[string]string, len(m))
	for k, v := range m {
		if v = strings.TrimSpace(v); v != "" {
			values[k] = v
		}
	}
	return Store{values: values}
}

// FromEnviron builds a Store from "KEY=value" pairs as returned by os.Environ.
func FromEnviron(environ []string) Store {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return StoreFrom(m)
}

// Get returns the value for key, or "" when absent.
func (s Store) Get(key string) string {
	return s.values[key]
}

// Has reports whether key has a non-empty value.
func (s Store) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// HasAll reports whether every key has a non-empty value.
func (s Store) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Truthy reports whether key is set to "true", "1" or "yes", in any case.
func (s Store) Truthy(key string) bool {
	switch strings.ToLower(s.values[key]) {
	case "true", "1", "yes":
		return true
	}
	return false
}
