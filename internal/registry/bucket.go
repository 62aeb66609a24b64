package registry

import "sync"

// bucket is one lifecycle collection. Lock order is bucket before entry; nothing
// may acquire a bucket lock while holding an entry lock.
type bucket struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func newBucket() *bucket {
	return &bucket{entries: make(map[string]*Entry)}
}

func (that *bucket) put(entry *Entry) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.entries[entry.ID()] = entry
}

func (that *bucket) get(id string) (*Entry, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.entries[id]
	return entry, ok
}

// take removes id if present and claim accepts it, as one step. Exactly one of
// any number of concurrent callers can win a given entry.
func (that *bucket) take(id string, claim func(*Entry) bool) (*Entry, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.entries[id]
	if !ok {
		return nil, false
	}

	if claim != nil && !claim(entry) {
		return nil, false
	}

	delete(that.entries, id)

	return entry, true
}

func (that *bucket) removeIf(predicate func(*Entry) bool) []*Entry {
	that.mu.Lock()
	defer that.mu.Unlock()

	var removed []*Entry
	for id, entry := range that.entries {
		if predicate(entry) {
			delete(that.entries, id)
			removed = append(removed, entry)
		}
	}

	return removed
}

func (that *bucket) values() []*Entry {
	that.mu.Lock()
	defer that.mu.Unlock()

	values := make([]*Entry, 0, len(that.entries))
	for _, entry := range that.entries {
		values = append(values, entry)
	}

	return values
}

func (that *bucket) len() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.entries)
}
