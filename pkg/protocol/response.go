package protocol

import (
	"encoding/json"
	"fmt"
)

// Side markers for retrieved messages, relative to the requesting user.
const (
	SideMine   = "y" // sent by the requester
	SideTheirs = "t" // sent by the counterpart
)

// Message is one stored message materialized for a response. It serializes
// as a single-key object, the key being the side marker.
type Message struct {
	Side string
	Text string
}

// MarshalJSON emits {"y": text} or {"t": text}.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Side != SideMine && m.Side != SideTheirs {
		return nil, fmt.Errorf("invalid message side %q", m.Side)
	}
	return json.Marshal(map[string]string{m.Side: m.Text})
}

// UnmarshalJSON reads a single-key side-tagged message object.
func (m *Message) UnmarshalJSON(data []byte) error {
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for side, text := range obj {
		if side == SideMine || side == SideTheirs {
			m.Side = side
			m.Text = text
			return nil
		}
	}
	return fmt.Errorf("message object has no side marker: %s", data)
}

// Conversation groups the messages exchanged with one counterpart.
type Conversation struct {
	Username string    `json:"username"`
	Messages []Message `json:"messages"`
}

// ResponseKind selects which of the response shapes a Response carries.
type ResponseKind uint8

const (
	KindStatus ResponseKind = iota
	KindAuth
	KindNotify
	KindMsgs
	KindAllMsgs
)

// Response is the single variant covering every server-to-client frame.
// Only the fields documented for its Kind are meaningful; Encode ignores
// the rest.
type Response struct {
	Kind   ResponseKind
	Status Status
	Msg    string

	SessionID string // KindAuth

	Sender string // KindNotify: who triggered the notification

	Username string    // KindMsgs: the counterpart the messages are with
	Messages []Message // KindMsgs

	Conversations []Conversation // KindAllMsgs
}

// NewStatusResponse builds a STATUS frame with the given outcome.
func NewStatusResponse(status Status, msg string) *Response {
	return &Response{Kind: KindStatus, Status: status, Msg: msg}
}

// NewAuthResponse builds an AUTH/OK frame carrying a fresh session token.
func NewAuthResponse(sessionID, msg string) *Response {
	return &Response{Kind: KindAuth, Status: StatusOK, Msg: msg, SessionID: sessionID}
}

// NewNotifyResponse builds an unsolicited NOTIFY/OK frame naming the sender.
func NewNotifyResponse(sender string) *Response {
	return &Response{Kind: KindNotify, Status: StatusOK, Msg: "Notify", Sender: sender}
}

// NewMsgsResponse builds a MSGS/OK frame with the conversation history
// against one counterpart.
func NewMsgsResponse(username string, messages []Message, msg string) *Response {
	return &Response{Kind: KindMsgs, Status: StatusOK, Msg: msg, Username: username, Messages: messages}
}

// NewAllMsgsResponse builds an ALLMSGS/OK frame with every conversation of
// the requester.
func NewAllMsgsResponse(conversations []Conversation, msg string) *Response {
	return &Response{Kind: KindAllMsgs, Status: StatusOK, Msg: msg, Conversations: conversations}
}

// Command returns the response command code implied by the kind.
func (r *Response) Command() Command {
	switch r.Kind {
	case KindAuth:
		return CmdAuth
	case KindNotify:
		return CmdNotify
	case KindMsgs:
		return CmdMsgs
	case KindAllMsgs:
		return CmdAllMsgs
	default:
		return CmdStatus
	}
}

// wire shapes shared by MarshalJSON

type responseHeader struct {
	Command Command `json:"command"`
	Status  Status  `json:"status"`
	Msg     string  `json:"msg"`
}

type responseAuthData struct {
	SessionID string `json:"session_id"`
}

type responseTarget struct {
	Username    string         `json:"username,omitempty"`
	Messages    []Message      `json:"messages,omitempty"`
	AllMessages []Conversation `json:"all_messages,omitempty"`
}

type responsePayload struct {
	AuthData *responseAuthData `json:"auth_data,omitempty"`
	Target   *responseTarget   `json:"target,omitempty"`
}

type responseWire struct {
	Header  responseHeader   `json:"header"`
	Payload *responsePayload `json:"payload,omitempty"`
}

// MarshalJSON serializes the response into its wire shape. One exhaustive
// switch covers every kind.
func (r *Response) MarshalJSON() ([]byte, error) {
	wire := responseWire{
		Header: responseHeader{Command: r.Command(), Status: r.Status, Msg: r.Msg},
	}

	switch r.Kind {
	case KindStatus:
		// header only
	case KindAuth:
		wire.Payload = &responsePayload{AuthData: &responseAuthData{SessionID: r.SessionID}}
	case KindNotify:
		wire.Payload = &responsePayload{Target: &responseTarget{Username: r.Sender}}
	case KindMsgs:
		wire.Payload = &responsePayload{Target: &responseTarget{Username: r.Username, Messages: r.Messages}}
	case KindAllMsgs:
		wire.Payload = &responsePayload{Target: &responseTarget{AllMessages: r.Conversations}}
	default:
		return nil, fmt.Errorf("unknown response kind %d", r.Kind)
	}

	return json.Marshal(wire)
}

// DecodeResponse parses a server frame back into a Response. Used by clients
// and tests; the kind is recovered from the header command.
func DecodeResponse(data []byte) (*Response, error) {
	var wire struct {
		Header  *responseHeader `json:"header"`
		Payload *struct {
			AuthData *responseAuthData `json:"auth_data"`
			Target   *responseTarget   `json:"target"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("malformed response frame: %w", err)
	}
	if wire.Header == nil {
		return nil, ErrMissingHeader
	}

	resp := &Response{Status: wire.Header.Status, Msg: wire.Header.Msg}

	switch wire.Header.Command {
	case CmdStatus:
		resp.Kind = KindStatus
	case CmdAuth:
		resp.Kind = KindAuth
		if wire.Payload != nil && wire.Payload.AuthData != nil {
			resp.SessionID = wire.Payload.AuthData.SessionID
		}
	case CmdNotify:
		resp.Kind = KindNotify
		if wire.Payload != nil && wire.Payload.Target != nil {
			resp.Sender = wire.Payload.Target.Username
		}
	case CmdMsgs:
		resp.Kind = KindMsgs
		if wire.Payload != nil && wire.Payload.Target != nil {
			resp.Username = wire.Payload.Target.Username
			resp.Messages = wire.Payload.Target.Messages
		}
	case CmdAllMsgs:
		resp.Kind = KindAllMsgs
		if wire.Payload != nil && wire.Payload.Target != nil {
			resp.Conversations = wire.Payload.Target.AllMessages
		}
	default:
		return nil, fmt.Errorf("unexpected response command %s", wire.Header.Command)
	}

	return resp, nil
}
