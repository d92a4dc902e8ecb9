package roster

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// myInfoPrefix is stripped by MergeInfo when callers pass a whole frame.
const myInfoPrefix = "$MyINFO $ALL "

// Directory is a concurrency-safe roster keyed by nick.
//
// All operations are serialized by a single RWMutex; LoadAll swaps the whole
// map under the write lock, so a concurrent Get or Exists observes either
// the old roster or the new one, never a mix.
type Directory struct {
	mu    sync.RWMutex
	users map[string]User
}

// New creates an empty Directory.
func New() *Directory {
	return &Directory{users: make(map[string]User)}
}

// LoadAll atomically replaces the roster with bare entries for names.
// Empty names and duplicates are ignored.
func (d *Directory) LoadAll(names []string) int {
	users := make(map[string]User, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		users[name] = User{Nick: name}
	}

	d.mu.Lock()
	d.users = users
	d.mu.Unlock()

	return len(users)
}

// Join adds a bare entry for name. It reports whether the user was added;
// joining a nick that is already present leaves its metadata untouched.
func (d *Directory) Join(name string) bool {
	if name == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[name]; exists {
		return false
	}
	d.users[name] = User{Nick: name}
	return true
}

// Quit removes name and reports whether it was present.
func (d *Directory) Quit(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[name]; !exists {
		return false
	}
	delete(d.users, name)
	return true
}

// Exists reports whether name is on the hub, with or without metadata.
func (d *Directory) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.users[name]
	return exists
}

// Get returns the user only when it is present and has metadata.
// Use Lookup to tell an unknown nick apart from a bare one.
func (d *Directory) Get(name string) (User, bool) {
	u, presence := d.Lookup(name)
	if presence != Known {
		return User{}, false
	}
	return u, true
}

// Lookup returns the entry for name together with its presence.
func (d *Directory) Lookup(name string) (User, Presence) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, exists := d.users[name]
	switch {
	case !exists:
		return User{}, Absent
	case !u.HasInfo:
		return u, Bare
	default:
		return u, Known
	}
}

// MergeInfo parses a $MyINFO payload and replaces the entry of the user it
// describes. Payloads for nicks that are not present are dropped, since
// presence is only established by the nick list or a $Hello.
//
// Both "nick desc$ $conn<flag>$email$share$" and the compact
// "nick desc$ conn$email$share$" layouts are accepted.
func (d *Directory) MergeInfo(raw string) (User, bool) {
	u, ok := ParseInfo(raw)
	if !ok {
		return User{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[u.Nick]; !exists {
		return User{}, false
	}
	d.users[u.Nick] = u
	return u, true
}

// Random returns an arbitrary present user.
func (d *Directory) Random() (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.users) == 0 {
		return User{}, false
	}

	n := rand.Intn(len(d.users)) // #nosec G404: not security sensitive
	for _, u := range d.users {
		if n == 0 {
			return u, true
		}
		n--
	}
	return User{}, false
}

// All returns a copy of every entry, sorted by nick.
func (d *Directory) All() []User {
	d.mu.RLock()
	users := make([]User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, u)
	}
	d.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		return users[i].Nick < users[j].Nick
	})
	return users
}

// Len returns the number of present users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.users)
}

// ParseInfo parses a $MyINFO payload without touching any roster.
func ParseInfo(raw string) (User, bool) {
	raw = strings.TrimPrefix(raw, myInfoPrefix)
	raw = strings.TrimSuffix(raw, "|")

	sp := strings.IndexByte(raw, ' ')
	if sp <= 0 {
		return User{}, false
	}
	nick := raw[:sp]

	fields := strings.Split(raw[sp+1:], "$")
	if len(fields) < 4 {
		return User{}, false
	}

	var conn, email, share string
	if len(fields) >= 6 && strings.TrimSpace(fields[1]) == "" {
		conn, email, share = fields[2], fields[3], fields[4]
	} else {
		conn, email, share = strings.TrimLeft(fields[1], " "), fields[2], fields[3]
	}

	u := User{
		Nick:    nick,
		Email:   email,
		HasInfo: true,
	}
	u.Description, u.Tag = splitTag(fields[0])

	if n := len(conn); n > 0 && conn[n-1] < 0x20 {
		u.Flag = conn[n-1]
		conn = conn[:n-1]
	}
	u.Connection = conn

	if size, err := strconv.ParseInt(strings.TrimSpace(share), 10, 64); err == nil && size >= 0 {
		u.ShareSize = size
	}

	return u, true
}

// splitTag separates a trailing "<client tag>" from a description.
func splitTag(desc string) (string, string) {
	if !strings.HasSuffix(desc, ">") {
		return desc, ""
	}
	open := strings.LastIndexByte(desc, '<')
	if open < 0 {
		return desc, ""
	}
	return desc[:open], desc[open+1 : len(desc)-1]
}
