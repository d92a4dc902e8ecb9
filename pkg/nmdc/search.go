package nmdc

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SizeMode restricts search results by size.
type SizeMode int

// Size restriction modes.
const (
	SizeAny SizeMode = iota
	SizeAtLeast
	SizeAtMost
)

// Unit scales SearchQuery.Size.
type Unit int64

// Size units.
const (
	Byte     Unit = 1
	Kilobyte Unit = 1 << 10
	Megabyte Unit = 1 << 20
	Gigabyte Unit = 1 << 30
)

// DataType filters search results by kind. The values are the wire codes.
type DataType int

// Data types.
const (
	DataAny DataType = iota + 1
	DataAudio
	DataCompressed
	DataDocument
	DataExecutable
	DataPicture
	DataVideo
	DataDirectory
	DataTTH
)

// tthPrefix marks a hash search pattern and a hash in a $SR hub slot.
const tthPrefix = "TTH:"

var dataTypeNames = map[DataType]string{
	DataAny:        "any",
	DataAudio:      "audio",
	DataCompressed: "compressed",
	DataDocument:   "document",
	DataExecutable: "executable",
	DataPicture:    "picture",
	DataVideo:      "video",
	DataDirectory:  "directory",
	DataTTH:        "tth",
}

// String returns the lower-case name of the data type.
func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is one of the nine wire codes.
func (t DataType) Valid() bool {
	return t >= DataAny && t <= DataTTH
}

// ParseDataType resolves a data type name such as "audio".
func ParseDataType(name string) (DataType, bool) {
	name = strings.ToLower(name)
	for t, n := range dataTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// SearchQuery is what a searcher is looking for.
type SearchQuery struct {
	Pattern  string
	SizeMode SizeMode
	Size     int64
	Unit     Unit
	Type     DataType
}

// Bytes returns the size restriction in bytes.
func (q SearchQuery) Bytes() int64 {
	unit := q.Unit
	if unit <= 0 {
		unit = Byte
	}
	return q.Size * int64(unit)
}

// AcceptsSize reports whether a file of the given size satisfies the
// size restriction.
func (q SearchQuery) AcceptsSize(size int64) bool {
	switch q.SizeMode {
	case SizeAtLeast:
		return size >= q.Bytes()
	case SizeAtMost:
		return size <= q.Bytes()
	default:
		return true
	}
}

// SearchRequest is a decoded $Search together with where to reply.
type SearchRequest struct {
	// Passive is true for "Hub:<nick>" searches; replies go through the hub.
	Passive bool

	// Nick is the searcher for passive requests.
	Nick string

	// Addr is the searcher's UDP ip:port for active requests.
	Addr string

	// Query is the decoded query.
	Query SearchQuery
}

// Scope returns the source token as it appears on the wire.
func (r SearchRequest) Scope() string {
	if r.Passive {
		return "Hub:" + r.Nick
	}
	return r.Addr
}

// SearchResult is one decoded or to-be-encoded $SR.
type SearchResult struct {
	// Nick is the responder.
	Nick string `json:"nick"`

	// Path is the matched file or directory, with '\' separators.
	Path string `json:"path"`

	// Size is the file size in bytes; zero for directories.
	Size int64 `json:"size"`

	// IsDir marks a directory match.
	IsDir bool `json:"is_dir"`

	// FreeSlots and TotalSlots are the responder's upload slots.
	FreeSlots  int `json:"free_slots"`
	TotalSlots int `json:"total_slots"`

	// HubName and HubAddr identify the responder's hub.
	HubName string `json:"hub_name,omitempty"`
	HubAddr string `json:"hub_addr"`

	// TTH is the file hash; it takes the hub name's slot on the wire.
	TTH string `json:"tth,omitempty"`

	// Target is the passive searcher the hub must forward the reply to.
	// Empty for replies sent over UDP.
	Target string `json:"target,omitempty"`

	// Source is "hub" for relayed results or the UDP sender address.
	Source string `json:"source,omitempty"`
}

// EncodeSearch renders a $Search command without its delimiter.
func EncodeSearch(scope string, q SearchQuery) string {
	restricted, minimum := "F", "T"
	var size int64
	switch q.SizeMode {
	case SizeAtLeast:
		restricted, size = "T", q.Bytes()
	case SizeAtMost:
		restricted, minimum, size = "T", "F", q.Bytes()
	}

	typ := q.Type
	if !typ.Valid() {
		typ = DataAny
	}

	pattern := q.Pattern
	if typ == DataTTH && !strings.HasPrefix(pattern, tthPrefix) {
		pattern = tthPrefix + pattern
	}
	pattern = strings.ReplaceAll(EscapeText(pattern), " ", "$")

	return fmt.Sprintf("$Search %s %s?%s?%d?%d?%s", scope, restricted, minimum, size, int(typ), pattern)
}

// DecodeSearch parses a "$Search <source> <flags>" frame.
//
// The flags must split on '?' into exactly five fields; one leading '?'
// before the first flag is tolerated.
func DecodeSearch(frame string) (SearchRequest, error) {
	const prefix = "$Search "

	var req SearchRequest
	if !strings.HasPrefix(frame, prefix) {
		return req, fmt.Errorf("%w: missing prefix", ErrMalformedSearch)
	}

	body := frame[len(prefix):]
	sp := strings.IndexByte(body, ' ')
	if sp <= 0 {
		return req, fmt.Errorf("%w: missing source", ErrMalformedSearch)
	}
	source, flags := body[:sp], body[sp+1:]

	if nick, ok := strings.CutPrefix(source, "Hub:"); ok {
		if nick == "" {
			return req, fmt.Errorf("%w: empty passive nick", ErrMalformedSearch)
		}
		req.Passive, req.Nick = true, nick
	} else {
		if _, _, err := net.SplitHostPort(source); err != nil {
			return req, fmt.Errorf("%w: bad source %q", ErrMalformedSearch, source)
		}
		req.Addr = source
	}

	fields := strings.Split(strings.TrimPrefix(flags, "?"), "?")
	if len(fields) != 5 {
		return req, fmt.Errorf("%w: %d fields", ErrMalformedSearch, len(fields))
	}

	restricted, okR := parseBool(fields[0])
	minimum, okM := parseBool(fields[1])
	if !okR || !okM {
		return req, fmt.Errorf("%w: bad flags", ErrMalformedSearch)
	}

	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		return req, fmt.Errorf("%w: bad size %q", ErrMalformedSearch, fields[2])
	}

	code, err := strconv.Atoi(fields[3])
	if err != nil || !DataType(code).Valid() {
		return req, fmt.Errorf("%w: bad data type %q", ErrMalformedSearch, fields[3])
	}

	q := SearchQuery{
		Size:    size,
		Unit:    Byte,
		Type:    DataType(code),
		Pattern: UnescapeText(strings.ReplaceAll(fields[4], "$", " ")),
	}
	switch {
	case !restricted:
		q.SizeMode = SizeAny
	case minimum:
		q.SizeMode = SizeAtLeast
	default:
		q.SizeMode = SizeAtMost
	}
	req.Query = q

	return req, nil
}

// EncodeResult renders a $SR command without its delimiter.
//
// File:      $SR <nick> <path>\x05<size> <free>/<total>\x05<hub> (<addr>)[\x05<target>]
// Directory: $SR <nick> <path> <free>/<total>\x05<hub> (<addr>)[\x05<target>]
//
// The target field is present only for passive (hub-relayed) replies.
func EncodeResult(r SearchResult) string {
	var b strings.Builder

	b.WriteString("$SR ")
	b.WriteString(r.Nick)
	b.WriteByte(' ')
	b.WriteString(EscapeText(r.Path))

	if r.IsDir {
		b.WriteByte(' ')
	} else {
		b.WriteByte(FieldSeparator)
		b.WriteString(strconv.FormatInt(r.Size, 10))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%d/%d", r.FreeSlots, r.TotalSlots)

	b.WriteByte(FieldSeparator)
	if r.TTH != "" {
		b.WriteString(tthPrefix + r.TTH)
	} else {
		b.WriteString(r.HubName)
	}
	b.WriteString(" (")
	b.WriteString(r.HubAddr)
	b.WriteByte(')')

	if r.Target != "" {
		b.WriteByte(FieldSeparator)
		b.WriteString(r.Target)
	}

	return b.String()
}

// DecodeResult parses a $SR frame in either shape.
func DecodeResult(frame string) (SearchResult, error) {
	const prefix = "$SR "

	var r SearchResult
	body, ok := strings.CutPrefix(strings.TrimSuffix(frame, "|"), prefix)
	if !ok {
		return r, fmt.Errorf("%w: missing prefix", ErrMalformedResult)
	}

	sp := strings.IndexByte(body, ' ')
	if sp <= 0 {
		return r, fmt.Errorf("%w: missing nick", ErrMalformedResult)
	}
	r.Nick = body[:sp]

	parts := strings.Split(body[sp+1:], string(FieldSeparator))
	if len(parts) < 2 {
		return r, fmt.Errorf("%w: %d fields", ErrMalformedResult, len(parts))
	}

	var hubPart string
	var rest []string
	if len(parts) >= 3 && isSizeSlots(parts[1]) {
		r.Path = UnescapeText(parts[0])
		sizeStr, slots, _ := strings.Cut(parts[1], " ")
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return r, fmt.Errorf("%w: bad size %q", ErrMalformedResult, sizeStr)
		}
		r.Size = size
		if r.FreeSlots, r.TotalSlots, err = parseSlots(slots); err != nil {
			return r, err
		}
		hubPart, rest = parts[2], parts[3:]
	} else {
		cut := strings.LastIndexByte(parts[0], ' ')
		if cut <= 0 {
			return r, fmt.Errorf("%w: missing slots", ErrMalformedResult)
		}
		r.IsDir = true
		r.Path = UnescapeText(parts[0][:cut])
		var err error
		if r.FreeSlots, r.TotalSlots, err = parseSlots(parts[0][cut+1:]); err != nil {
			return r, err
		}
		hubPart, rest = parts[1], parts[2:]
	}

	open := strings.LastIndex(hubPart, " (")
	if open < 0 || !strings.HasSuffix(hubPart, ")") {
		return r, fmt.Errorf("%w: bad hub field %q", ErrMalformedResult, hubPart)
	}
	name := hubPart[:open]
	r.HubAddr = hubPart[open+2 : len(hubPart)-1]
	if hash, ok := strings.CutPrefix(name, tthPrefix); ok {
		r.TTH = hash
	} else {
		r.HubName = name
	}

	if len(rest) > 0 {
		r.Target = rest[0]
	}

	return r, nil
}

// isSizeSlots reports whether s looks like "<size> <free>/<total>".
func isSizeSlots(s string) bool {
	size, slots, ok := strings.Cut(s, " ")
	if !ok {
		return false
	}
	if _, err := strconv.ParseInt(size, 10, 64); err != nil {
		return false
	}
	_, _, err := parseSlots(slots)
	return err == nil
}

func parseSlots(s string) (int, int, error) {
	freeStr, totalStr, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("%w: bad slots %q", ErrMalformedResult, s)
	}
	free, err1 := strconv.Atoi(freeStr)
	total, err2 := strconv.Atoi(totalStr)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: bad slots %q", ErrMalformedResult, s)
	}
	return free, total, nil
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "T":
		return true, true
	case "F":
		return false, true
	default:
		return false, false
	}
}
