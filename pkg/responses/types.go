// Package responses stores the bot's canned replies in BoltDB.
//
// Each response has a trigger phrase and a match mode. Incoming chat text
// is matched case-insensitively against all triggers; when several match,
// the longest trigger wins.
//
// Example usage:
//
//	store, err := responses.New(responses.Config{
//	    DBPath: "~/.config/nmdcbot/responses.db",
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Add(&responses.Response{
//	    Trigger: "+rules",
//	    Reply:   "Be nice, {nick}. Share at least 10 GiB.",
//	    Mode:    responses.ModeExact,
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
//	if r, ok := store.Match("+rules"); ok {
//	    fmt.Println(r.Reply)
//	}
package responses

import "time"

// Mode selects how a trigger is compared with chat text.
type Mode string

// Match modes.
const (
	// ModeExact matches when the whole message equals the trigger.
	ModeExact Mode = "exact"

	// ModePrefix matches when the message starts with the trigger.
	ModePrefix Mode = "prefix"

	// ModeContains matches when the trigger appears anywhere.
	ModeContains Mode = "contains"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeExact, ModePrefix, ModeContains:
		return true
	default:
		return false
	}
}

// Scope limits where a response is used.
type Scope string

// Scopes.
const (
	ScopeAll     Scope = "all"
	ScopePublic  Scope = "public"
	ScopePrivate Scope = "private"
)

// Allows reports whether a response with scope s answers a message
// received in the given context.
func (s Scope) Allows(private bool) bool {
	switch s {
	case ScopePublic:
		return !private
	case ScopePrivate:
		return private
	default:
		return true
	}
}

// Response is one stored trigger and its reply.
type Response struct {
	// ID is assigned by the store.
	ID uint64 `json:"id" yaml:"-"`

	// Trigger is the phrase to look for. Stored lower-cased in the index.
	Trigger string `json:"trigger" yaml:"trigger"`

	// Reply is the text sent back. "{nick}" is replaced with the sender.
	Reply string `json:"reply" yaml:"reply"`

	// Mode is the match mode (default: exact).
	Mode Mode `json:"mode" yaml:"mode"`

	// Scope limits the response to public or private chat (default: all).
	Scope Scope `json:"scope" yaml:"scope"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at" yaml:"-"`

	// UpdatedAt is the last update timestamp.
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Store provides canned response CRUD and matching.
type Store interface {
	// Add stores a new response and sets its ID.
	//
	// Returns ErrTriggerConflict if the trigger is already used.
	Add(r *Response) error

	// Get returns the response with the given ID.
	Get(id uint64) (*Response, error)

	// GetByTrigger returns the response for a trigger, case-insensitively.
	GetByTrigger(trigger string) (*Response, error)

	// Update replaces the response with the given ID.
	Update(id uint64, r *Response) error

	// Delete removes a response. Deleting a missing ID is not an error.
	Delete(id uint64) error

	// List returns all responses ordered by ID.
	List() ([]*Response, error)

	// Match returns the best response for text.
	Match(text string) (*Response, bool)

	// Import loads responses from a YAML file, adding new triggers and
	// updating existing ones. It returns the number of responses written.
	Import(path string) (int, error)

	// Close closes the database.
	Close() error
}

// Config contains store configuration.
type Config struct {
	// DBPath is the BoltDB file path. "~" is expanded.
	DBPath string

	// Timeout is the database lock timeout (default: 1 second).
	Timeout time.Duration
}

// importFile is the layout of a responses YAML file.
type importFile struct {
	Responses []Response `yaml:"responses"`
}
