package nmdc

// Event is one typed notification produced from hub traffic. The set of
// implementations is closed; switch on the concrete type.
type Event interface {
	event()
}

// UserJoined reports a $Hello for another user.
type UserJoined struct {
	Nick string
}

// UserQuit reports a $Quit.
type UserQuit struct {
	Nick string
}

// PublicMessage is main-chat text.
type PublicMessage struct {
	From string
	Text string
}

// PrivateMessage is a $To: message whose sender is the From: nick.
type PrivateMessage struct {
	From string
	Text string
}

// ChannelMessage is a $To: message relayed on behalf of a channel or bot:
// the From: nick names the channel and From names the speaker.
type ChannelMessage struct {
	Channel string
	From    string
	Text    string
}

// SearchReceived carries a decoded $Search.
type SearchReceived struct {
	Request SearchRequest
}

// SearchResultReceived carries a decoded $SR, from the hub or over UDP.
type SearchResultReceived struct {
	Result SearchResult
}

// HubNameChanged reports a $HubName after the handshake.
type HubNameChanged struct {
	Name string
}

// Disconnected is the last event of a session. Err is nil after Close.
type Disconnected struct {
	Err error
}

func (UserJoined) event()           {}
func (UserQuit) event()             {}
func (PublicMessage) event()        {}
func (PrivateMessage) event()       {}
func (ChannelMessage) event()       {}
func (SearchReceived) event()       {}
func (SearchResultReceived) event() {}
func (HubNameChanged) event()       {}
func (Disconnected) event()         {}
