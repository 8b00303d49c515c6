package cache

import "sync"

// tagIndex maps tags to the normalized keys last written with them.
// A key belongs only to the tags of its latest write.
type tagIndex struct {
	mu    sync.Mutex
	byTag map[string]map[string]struct{}
	byKey map[string][]string
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		byTag: make(map[string]map[string]struct{}),
		byKey: make(map[string][]string),
	}
}

// assign replaces the tags registered for key.
func (t *tagIndex) assign(key string, tags []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.unlinkLocked(key)
	if len(tags) == 0 {
		return
	}

	unique := make([]string, 0, len(tags))
	for _, tag := range tags {
		keys, ok := t.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			t.byTag[tag] = keys
		}
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		unique = append(unique, tag)
	}
	t.byKey[key] = unique
}

// add registers key under tags without dropping its existing tags.
func (t *tagIndex) add(key string, tags []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tag := range tags {
		keys, ok := t.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			t.byTag[tag] = keys
		}
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		t.byKey[key] = append(t.byKey[key], tag)
	}
}

// remove forgets key under every tag.
func (t *tagIndex) remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unlinkLocked(key)
}

func (t *tagIndex) unlinkLocked(key string) {
	for _, tag := range t.byKey[key] {
		keys := t.byTag[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(t.byTag, tag)
		}
	}
	delete(t.byKey, key)
}

// take drops tag and returns the keys that were registered under it.
func (t *tagIndex) take(tag string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := t.byTag[tag]
	delete(t.byTag, tag)

	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
		remaining := t.byKey[key][:0]
		for _, other := range t.byKey[key] {
			if other != tag {
				remaining = append(remaining, other)
			}
		}
		if len(remaining) == 0 {
			delete(t.byKey, key)
		} else {
			t.byKey[key] = remaining
		}
	}
	return out
}

// keys returns the keys currently registered under tag.
func (t *tagIndex) keys(tag string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.byTag[tag]))
	for key := range t.byTag[tag] {
		out = append(out, key)
	}
	return out
}

// reset drops every tag.
func (t *tagIndex) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byTag = make(map[string]map[string]struct{})
	t.byKey = make(map[string][]string)
}

// size returns the number of tags and tagged keys.
func (t *tagIndex) size() (tags, keys int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byTag), len(t.byKey)
}
