package nmdc

import (
	"strings"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
)

// CommandWriter sends one command to the hub, appending the delimiter.
type CommandWriter interface {
	SendCommand(cmd string) error
}

// Dispatcher classifies decoded frames, applies their roster side effects
// and turns them into Events.
type Dispatcher struct {
	self    string
	dir     *roster.Directory
	out     CommandWriter
	log     logger.Logger
	metrics Metrics

	// onHubName is called for every $HubName frame.
	onHubName func(name string)
}

// NewDispatcher creates a Dispatcher for the client nick self. Commands the
// dispatcher must send in response to hub traffic ($GetINFO) go to out.
func NewDispatcher(self string, dir *roster.Directory, out CommandWriter, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		self:    self,
		dir:     dir,
		out:     out,
		log:     log,
		metrics: noopMetrics{},
	}
}

// Dispatch handles one frame. It returns the event to deliver, if any.
func (d *Dispatcher) Dispatch(frame string) (Event, bool) {
	d.metrics.FrameReceived(commandName(frame))

	switch {
	case strings.HasPrefix(frame, "<"):
		return d.publicMessage(frame)

	case strings.HasPrefix(frame, "$Hello "):
		nick := frame[len("$Hello "):]
		if nick == d.self {
			return nil, false
		}
		d.dir.Join(nick)
		return UserJoined{Nick: nick}, true

	case strings.HasPrefix(frame, "$Quit "):
		nick := frame[len("$Quit "):]
		d.dir.Quit(nick)
		return UserQuit{Nick: nick}, true

	case strings.HasPrefix(frame, "$MyINFO $ALL "):
		if _, ok := d.dir.MergeInfo(frame); !ok {
			d.drop("unknown-user", frame)
		}
		return nil, false

	case strings.HasPrefix(frame, "$NickList "):
		d.LoadNickList(frame[len("$NickList "):])
		return nil, false

	case strings.HasPrefix(frame, "$To: "):
		return d.privateMessage(frame)

	case strings.HasPrefix(frame, "$Search "):
		req, err := DecodeSearch(frame)
		if err != nil {
			d.drop("malformed-search", frame)
			return nil, false
		}
		return SearchReceived{Request: req}, true

	case strings.HasPrefix(frame, "$SR "):
		res, err := DecodeResult(frame)
		if err != nil {
			d.drop("malformed-result", frame)
			return nil, false
		}
		res.Source = "hub"
		return SearchResultReceived{Result: res}, true

	case strings.HasPrefix(frame, "$HubName "):
		name := frame[len("$HubName "):]
		if d.onHubName != nil {
			d.onHubName(name)
		}
		return HubNameChanged{Name: name}, true

	default:
		d.drop("unrecognized", frame)
		return nil, false
	}
}

// LoadNickList replaces the roster with the "$$"-separated names and asks
// the hub for each user's info.
func (d *Dispatcher) LoadNickList(payload string) int {
	names := strings.Split(payload, "$$")
	n := d.dir.LoadAll(names)

	for _, name := range names {
		if name == "" || name == d.self {
			continue
		}
		if err := d.out.SendCommand("$GetINFO " + name + " " + d.self); err != nil {
			d.log.Warn("failed to request user info", "user", name, "error", err)
			break
		}
	}

	d.log.Debug("nick list loaded", "users", n)
	return n
}

// publicMessage parses "<nick> text".
func (d *Dispatcher) publicMessage(frame string) (Event, bool) {
	end := strings.IndexByte(frame, '>')
	if end <= 1 {
		d.drop("malformed-chat", frame)
		return nil, false
	}
	text := strings.TrimPrefix(frame[end+1:], " ")
	return PublicMessage{From: frame[1:end], Text: UnescapeText(text)}, true
}

// privateMessage parses "$To: <to> From: <from> $<<sender>> <text>".
func (d *Dispatcher) privateMessage(frame string) (Event, bool) {
	rest := frame[len("$To: "):]

	idx := strings.Index(rest, " From: ")
	if idx < 0 {
		d.drop("malformed-private", frame)
		return nil, false
	}
	rest = rest[idx+len(" From: "):]

	idx = strings.Index(rest, " $")
	if idx <= 0 {
		d.drop("malformed-private", frame)
		return nil, false
	}
	from, body := rest[:idx], rest[idx+2:]

	sender, text := from, body
	if strings.HasPrefix(body, "<") {
		if end := strings.IndexByte(body, '>'); end > 1 {
			sender = body[1:end]
			text = strings.TrimPrefix(body[end+1:], " ")
		}
	}
	text = UnescapeText(text)

	if sender == from {
		return PrivateMessage{From: from, Text: text}, true
	}
	return ChannelMessage{Channel: from, From: sender, Text: text}, true
}

func (d *Dispatcher) drop(reason, frame string) {
	d.metrics.FrameDropped(reason)
	d.log.Debug("frame dropped", "reason", reason, "frame", truncate(frame))
}
