// Package roster tracks the users present on a hub.
//
// A Directory is fed by the protocol engine: the nick list loads it in bulk,
// $Hello and $Quit add and remove single users, and $MyINFO broadcasts merge
// metadata into users that are already present. Readers always receive
// copies, so callers can hold on to a User without racing the reader loop.
//
// Example usage:
//
//	dir := roster.New()
//	dir.LoadAll([]string{"alice", "bob"})
//	dir.MergeInfo("bob music lover$ $LAN(T3)\x01$bob@example.org$1073741824$")
//
//	if u, ok := dir.Get("bob"); ok {
//	    fmt.Printf("%s shares %d bytes\n", u.Nick, u.ShareSize)
//	}
package roster

// User is a snapshot of one roster entry.
type User struct {
	// Nick is the unique key within a roster.
	Nick string `json:"nick"`

	// Description is the free-text description without the client tag.
	Description string `json:"description,omitempty"`

	// Tag is the client tag advertised inside the description
	// (the text between '<' and '>'), if any.
	Tag string `json:"tag,omitempty"`

	// Connection is the advertised connection type, e.g. "LAN(T3)".
	Connection string `json:"connection,omitempty"`

	// Flag is the status byte that trails the connection type.
	Flag byte `json:"flag,omitempty"`

	// Email is the advertised e-mail address.
	Email string `json:"email,omitempty"`

	// ShareSize is the declared share size in bytes.
	ShareSize int64 `json:"share_size"`

	// HasInfo is false for bare entries that only came from the nick list
	// or a $Hello, and true once a $MyINFO has been merged.
	HasInfo bool `json:"has_info"`
}

// Presence describes what a Directory knows about a nick.
type Presence int

const (
	// Absent means the nick is not on the hub.
	Absent Presence = iota

	// Bare means the nick is present but no $MyINFO has arrived yet.
	Bare

	// Known means the nick is present with metadata.
	Known
)

// String returns a human-readable presence name.
func (p Presence) String() string {
	switch p {
	case Bare:
		return "bare"
	case Known:
		return "known"
	default:
		return "absent"
	}
}
