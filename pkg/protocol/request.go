package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingHeader indicates the frame has no header section.
	ErrMissingHeader = errors.New("missing header section")
	// ErrMissingAuthData indicates the frame has no payload.auth_data section.
	ErrMissingAuthData = errors.New("missing auth_data section")
	// ErrMissingTarget indicates the frame has no payload.target section.
	ErrMissingTarget = errors.New("missing target section")
)

// Request is one inbound client frame. Sections are pointers so a missing
// sub-object can be told apart from an empty one.
type Request struct {
	Header  *RequestHeader  `json:"header"`
	Payload *RequestPayload `json:"payload,omitempty"`
}

// RequestHeader carries the command code of a request.
type RequestHeader struct {
	Command Command `json:"command"`
}

// RequestPayload holds the optional payload sections of a request.
type RequestPayload struct {
	AuthData *AuthData   `json:"auth_data,omitempty"`
	Target   *TargetData `json:"target,omitempty"`
}

// AuthData identifies the requesting user.
type AuthData struct {
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// TargetData names the counterpart of a send/get operation.
type TargetData struct {
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ParseRequest decodes a single JSON document into a Request. The header
// section is mandatory; payload sections are checked per command by the
// dispatcher.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if req.Header == nil {
		return nil, ErrMissingHeader
	}
	return &req, nil
}

// Auth returns the auth_data payload section, or ErrMissingAuthData if the
// request does not carry one.
func (r *Request) Auth() (*AuthData, error) {
	if r.Payload == nil || r.Payload.AuthData == nil {
		return nil, ErrMissingAuthData
	}
	return r.Payload.AuthData, nil
}

// Target returns the target payload section, or ErrMissingTarget if the
// request does not carry one.
func (r *Request) Target() (*TargetData, error) {
	if r.Payload == nil || r.Payload.Target == nil {
		return nil, ErrMissingTarget
	}
	return r.Payload.Target, nil
}

// NewRequest builds a client request frame.
func NewRequest(cmd Command, auth *AuthData, target *TargetData) *Request {
	req := &Request{Header: &RequestHeader{Command: cmd}}
	if auth != nil || target != nil {
		req.Payload = &RequestPayload{AuthData: auth, Target: target}
	}
	return req
}
