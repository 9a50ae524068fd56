// Package cookie provides the cookie jar shared between requests.
//
// A jar is a case-insensitive, insertion-ordered name/value map. An unlocked
// jar is updated in place by every response that uses it; a locked jar is
// left untouched and each response collects its cookies in a fresh jar
// instead, so one read-only cookie set can seed many requests.
package cookie

import (
	"strings"
	"sync"
)

type entry struct {
	name  string
	value string
}

// Jar is safe for concurrent use.
type Jar struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	locked  bool
}

// NewJar returns an empty unlocked jar.
func NewJar() *Jar {
	return &Jar{entries: make(map[string]*entry)}
}

// NewLockedJar returns an empty locked jar.
func NewLockedJar() *Jar {
	j := NewJar()
	j.locked = true
	return j
}

func key(name string) string { return strings.ToLower(name) }

// IsLocked reports whether responses must leave the jar untouched.
func (j *Jar) IsLocked() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.locked
}

// SetLocked changes the lock flag.
func (j *Jar) SetLocked(locked bool) {
	j.mu.Lock()
	j.locked = locked
	j.mu.Unlock()
}

// Set stores a cookie, replacing any cookie with the same name.
func (j *Jar) Set(name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setLocked(name, value)
}

func (j *Jar) setLocked(name, value string) {
	k := key(name)
	if e, ok := j.entries[k]; ok {
		e.name = name
		e.value = value
		return
	}
	j.entries[k] = &entry{name: name, value: value}
	j.order = append(j.order, k)
}

// Get returns the cookie value for name.
func (j *Jar) Get(name string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	e, ok := j.entries[key(name)]
	if !ok {
		return "", false
	}
	return e.value, true
}

// Has reports whether the jar holds name.
func (j *Jar) Has(name string) bool {
	_, ok := j.Get(name)
	return ok
}

// Remove deletes name from the jar.
func (j *Jar) Remove(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.removeLocked(name)
}

func (j *Jar) removeLocked(name string) {
	k := key(name)
	if _, ok := j.entries[k]; !ok {
		return
	}
	delete(j.entries, k)
	for i, o := range j.order {
		if o == k {
			j.order = append(j.order[:i], j.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cookies.
func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Names returns cookie names in insertion order.
func (j *Jar) Names() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	names := make([]string, 0, len(j.order))
	for _, k := range j.order {
		names = append(names, j.entries[k].name)
	}
	return names
}

// Clone returns an unlocked copy.
func (j *Jar) Clone() *Jar {
	j.mu.RLock()
	defer j.mu.RUnlock()
	c := NewJar()
	for _, k := range j.order {
		e := j.entries[k]
		c.setLocked(e.name, e.value)
	}
	return c
}

// Clear removes every cookie.
func (j *Jar) Clear() {
	j.mu.Lock()
	j.entries = make(map[string]*entry)
	j.order = nil
	j.mu.Unlock()
}

// String renders the jar as a Cookie header value ("a=1; b=2").
func (j *Jar) String() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var sb strings.Builder
	for i, k := range j.order {
		if i > 0 {
			sb.WriteString("; ")
		}
		e := j.entries[k]
		sb.WriteString(e.name)
		sb.WriteByte('=')
		sb.WriteString(e.value)
	}
	return sb.String()
}
