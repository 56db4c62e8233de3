package server

import (
	"yachat/pkg/protocol"
	"yachat/pkg/store"
)

// handleFrame parses one inbound frame, dispatches it to the command
// handler and writes the response. The dispatcher is stateless across
// frames; all state lives in the session store and the persistent store.
// The returned error is a transport write failure, never a protocol-level
// one; protocol failures become FAIL responses and the connection stays
// open.
func (s *Server) handleFrame(connID uint64, sc *SafeConn, line []byte) error {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		debugLog.Printf("Connection %d: error parsing received JSON [header section]: %v", connID, err)
		if s.metrics != nil {
			s.metrics.RecordMalformedFrame()
		}
		return sc.WriteFrame(
			protocol.NewStatusResponse(protocol.StatusFail, "Error parsing received JSON [header section]"))
	}

	switch req.Header.Command {
	case protocol.CmdRegister:
		return s.handleRegister(sc, req)
	case protocol.CmdLogin:
		return s.handleLogin(connID, sc, req)
	case protocol.CmdLogout:
		return s.handleLogout(sc, req)
	case protocol.CmdSendMsg:
		return s.handleSendMsg(sc, req)
	case protocol.CmdGetMsgs:
		return s.handleGetMsgs(sc, req)
	case protocol.CmdGetAllMsgs:
		return s.handleGetAllMsgs(sc, req)
	case protocol.CmdNotify:
		// NOTIFY is server-initiated; a client sending it gets a polite no-op
		return s.respond(sc, protocol.CmdNotify,
			protocol.NewStatusResponse(protocol.StatusOK, "Command 'notify' not implemented"))
	default:
		if s.metrics != nil {
			s.metrics.RecordUnknownCommand()
		}
		return sc.WriteFrame(protocol.NewStatusResponse(protocol.StatusFail, "Unknown command"))
	}
}

// respond writes a response frame and records the outcome metric.
func (s *Server) respond(sc *SafeConn, cmd protocol.Command, resp *protocol.Response) error {
	if s.metrics != nil {
		s.metrics.RecordCommand(cmd, resp.Status)
	}
	return sc.WriteFrame(resp)
}

// fail shortcuts a STATUS/FAIL response.
func (s *Server) fail(sc *SafeConn, cmd protocol.Command, msg string) error {
	return s.respond(sc, cmd, protocol.NewStatusResponse(protocol.StatusFail, msg))
}

// handleRegister handles REGISTER: creates a new account.
func (s *Server) handleRegister(sc *SafeConn, req *protocol.Request) error {
	auth, err := req.Auth()
	if err != nil {
		return s.fail(sc, protocol.CmdRegister, "Error parsing received JSON on register [auth data section]")
	}

	if auth.Username == "" || auth.Password == "" {
		debugLog.Printf("register: missing required field [auth data section]")
		return s.fail(sc, protocol.CmdRegister, "Command 'register' failed")
	}

	if err := s.store.CreateUser(auth.Username, auth.Password); err != nil {
		debugLog.Printf("register: can't create user %q: %v", auth.Username, err)
		return s.fail(sc, protocol.CmdRegister, "Command 'register' failed")
	}

	debugLog.Printf("register: user %q registered", auth.Username)
	return s.respond(sc, protocol.CmdRegister,
		protocol.NewStatusResponse(protocol.StatusOK, "Command 'register' completed"))
}

// handleLogin handles LOGIN: checks credentials and creates a session bound
// to this connection.
func (s *Server) handleLogin(connID uint64, sc *SafeConn, req *protocol.Request) error {
	auth, err := req.Auth()
	if err != nil {
		return s.fail(sc, protocol.CmdLogin, "Error parsing received JSON on login [auth data section]")
	}

	if auth.Username == "" || auth.Password == "" {
		debugLog.Printf("login: missing required field [auth data section]")
		return s.fail(sc, protocol.CmdLogin, "Command 'login' failed")
	}

	exists, err := s.store.UserExists(auth.Username)
	if err != nil {
		errorLog.Printf("login: store error for %q: %v", auth.Username, err)
		return s.fail(sc, protocol.CmdLogin, "Command 'login' failed")
	}
	if !exists {
		debugLog.Printf("login: user %q doesn't exist", auth.Username)
		return s.fail(sc, protocol.CmdLogin, "Command 'login' failed")
	}

	ok, err := s.store.CheckPassword(auth.Username, auth.Password)
	if err != nil {
		errorLog.Printf("login: store error for %q: %v", auth.Username, err)
		return s.fail(sc, protocol.CmdLogin, "Command 'login' failed")
	}
	if !ok {
		debugLog.Printf("login: invalid password for user %q", auth.Username)
		return s.fail(sc, protocol.CmdLogin, "Command 'login' failed")
	}

	token, err := s.sessions.Add(auth.Username, connID)
	if err != nil {
		debugLog.Printf("login: can't create session for %q: %v", auth.Username, err)
		return s.fail(sc, protocol.CmdLogin, "Command 'login' failed")
	}

	debugLog.Printf("login: user %q logged in on connection %d", auth.Username, connID)
	return s.respond(sc, protocol.CmdLogin,
		protocol.NewAuthResponse(token, "Command 'login' completed"))
}

// handleLogout handles LOGOUT: removes the session if the supplied token
// matches.
func (s *Server) handleLogout(sc *SafeConn, req *protocol.Request) error {
	auth, err := req.Auth()
	if err != nil {
		return s.fail(sc, protocol.CmdLogout, "Error parsing received JSON on logout [auth data section]")
	}

	if auth.Username == "" || auth.SessionID == "" {
		debugLog.Printf("logout: missing required field [auth data section]")
		return s.fail(sc, protocol.CmdLogout, "Command 'logout' failed")
	}

	if !s.sessions.IsAuthorized(auth.SessionID, auth.Username) {
		debugLog.Printf("logout: unauthorized for user %q", auth.Username)
		return s.fail(sc, protocol.CmdLogout, "Command 'logout' failed")
	}

	if !s.sessions.Remove(auth.Username) {
		debugLog.Printf("logout: no session for user %q", auth.Username)
		return s.fail(sc, protocol.CmdLogout, "Command 'logout' failed")
	}

	debugLog.Printf("logout: user %q logged out", auth.Username)
	return s.respond(sc, protocol.CmdLogout,
		protocol.NewStatusResponse(protocol.StatusOK, "Command 'logout' completed"))
}

// handleSendMsg handles SENDMSG: persists the message, confirms to the
// sender, then pushes a NOTIFY to the recipient if reachable.
func (s *Server) handleSendMsg(sc *SafeConn, req *protocol.Request) error {
	auth, err := req.Auth()
	if err != nil {
		return s.fail(sc, protocol.CmdSendMsg, "Error parsing received JSON on send message [auth data section]")
	}
	target, err := req.Target()
	if err != nil {
		return s.fail(sc, protocol.CmdSendMsg, "Error parsing received JSON on send message [target data section]")
	}

	if auth.Username == "" || auth.SessionID == "" || target.Username == "" || target.Message == "" {
		debugLog.Printf("sendmsg: missing required field")
		return s.fail(sc, protocol.CmdSendMsg, "Command 'sendmsg' failed")
	}

	if s.config.MaxMessageLength > 0 && len(target.Message) > s.config.MaxMessageLength {
		debugLog.Printf("sendmsg: message from %q exceeds %d bytes", auth.Username, s.config.MaxMessageLength)
		return s.fail(sc, protocol.CmdSendMsg, "Message too long")
	}

	if !s.sessions.IsAuthorized(auth.SessionID, auth.Username) {
		debugLog.Printf("sendmsg: unauthorized for user %q", auth.Username)
		return s.fail(sc, protocol.CmdSendMsg, "Command 'sendmsg' failed")
	}

	senderID, targetID, err := s.resolveUserPair(auth.Username, target.Username)
	if err != nil {
		debugLog.Printf("sendmsg: %v", err)
		return s.fail(sc, protocol.CmdSendMsg, "Command 'sendmsg' failed")
	}

	if err := s.store.CreateMessage(senderID, targetID, target.Message); err != nil {
		errorLog.Printf("sendmsg: can't persist message to %q: %v", target.Username, err)
		return s.fail(sc, protocol.CmdSendMsg, "Command 'sendmsg' failed")
	}

	debugLog.Printf("sendmsg: message from %q to %q persisted", auth.Username, target.Username)

	if err := s.respond(sc, protocol.CmdSendMsg,
		protocol.NewStatusResponse(protocol.StatusOK, "Command 'sendmsg' completed")); err != nil {
		return err
	}

	// Push happens after the sender's confirmation; its failures never
	// reach the sender.
	s.notifyUser(target.Username, auth.Username)
	return nil
}

// handleGetMsgs handles GETMSGS: returns the conversation with one
// counterpart, each message side-tagged relative to the requester.
func (s *Server) handleGetMsgs(sc *SafeConn, req *protocol.Request) error {
	auth, err := req.Auth()
	if err != nil {
		return s.fail(sc, protocol.CmdGetMsgs, "Error parsing received JSON on get messages [auth data section]")
	}
	target, err := req.Target()
	if err != nil {
		return s.fail(sc, protocol.CmdGetMsgs, "Error parsing received JSON on get messages [target data section]")
	}

	if auth.Username == "" || auth.SessionID == "" || target.Username == "" {
		debugLog.Printf("getmsgs: missing required field")
		return s.fail(sc, protocol.CmdGetMsgs, "Command 'getmsgs' failed")
	}

	if !s.sessions.IsAuthorized(auth.SessionID, auth.Username) {
		debugLog.Printf("getmsgs: unauthorized for user %q", auth.Username)
		return s.fail(sc, protocol.CmdGetMsgs, "Command 'getmsgs' failed")
	}

	userID, peerID, err := s.resolveUserPair(auth.Username, target.Username)
	if err != nil {
		debugLog.Printf("getmsgs: %v", err)
		return s.fail(sc, protocol.CmdGetMsgs, "Command 'getmsgs' failed")
	}

	stored, err := s.store.MessagesBetween(userID, peerID)
	if err != nil {
		debugLog.Printf("getmsgs: can't get messages between %q and %q: %v", auth.Username, target.Username, err)
		return s.fail(sc, protocol.CmdGetMsgs, "Command 'getmsgs' failed")
	}

	messages := make([]protocol.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, tagMessage(m.SenderID, userID, m.Text))
	}

	return s.respond(sc, protocol.CmdGetMsgs,
		protocol.NewMsgsResponse(target.Username, messages, "Command 'getmsgs' completed"))
}

// handleGetAllMsgs handles GETALLMSGS: returns every conversation of the
// requester, grouped by counterpart.
func (s *Server) handleGetAllMsgs(sc *SafeConn, req *protocol.Request) error {
	auth, err := req.Auth()
	if err != nil {
		return s.fail(sc, protocol.CmdGetAllMsgs, "Error parsing received JSON on get all messages [auth data section]")
	}

	if auth.Username == "" || auth.SessionID == "" {
		debugLog.Printf("getallmsgs: missing required field [auth data section]")
		return s.fail(sc, protocol.CmdGetAllMsgs, "Command 'getallmsgs' failed")
	}

	if !s.sessions.IsAuthorized(auth.SessionID, auth.Username) {
		debugLog.Printf("getallmsgs: unauthorized for user %q", auth.Username)
		return s.fail(sc, protocol.CmdGetAllMsgs, "Command 'getallmsgs' failed")
	}

	userID, err := s.store.UserID(auth.Username)
	if err != nil {
		errorLog.Printf("getallmsgs: can't resolve user %q: %v", auth.Username, err)
		return s.fail(sc, protocol.CmdGetAllMsgs, "Command 'getallmsgs' failed")
	}

	stored, err := s.store.AllMessages(userID)
	if err != nil {
		debugLog.Printf("getallmsgs: can't get messages for %q: %v", auth.Username, err)
		return s.fail(sc, protocol.CmdGetAllMsgs, "Command 'getallmsgs' failed")
	}

	return s.respond(sc, protocol.CmdGetAllMsgs,
		protocol.NewAllMsgsResponse(groupConversations(stored, userID), "Command 'getallmsgs' completed"))
}

// resolveUserPair maps two usernames to their store ids. The second user
// not existing is the common "unknown target" rejection.
func (s *Server) resolveUserPair(username, peer string) (int64, int64, error) {
	userID, err := s.store.UserID(username)
	if err != nil {
		return 0, 0, err
	}
	peerID, err := s.store.UserID(peer)
	if err != nil {
		return 0, 0, err
	}
	return userID, peerID, nil
}

// tagMessage computes the side marker of a stored message relative to the
// requesting user.
func tagMessage(senderID, requesterID int64, text string) protocol.Message {
	side := protocol.SideTheirs
	if senderID == requesterID {
		side = protocol.SideMine
	}
	return protocol.Message{Side: side, Text: text}
}

// groupConversations folds the flat per-counterpart rows into ordered
// conversations. Rows arrive sorted by counterpart, so one pass suffices.
func groupConversations(rows []store.ConversationMessage, requesterID int64) []protocol.Conversation {
	var conversations []protocol.Conversation
	for _, row := range rows {
		msg := tagMessage(row.SenderID, requesterID, row.Text)
		n := len(conversations)
		if n > 0 && conversations[n-1].Username == row.Peer {
			conversations[n-1].Messages = append(conversations[n-1].Messages, msg)
			continue
		}
		conversations = append(conversations, protocol.Conversation{
			Username: row.Peer,
			Messages: []protocol.Message{msg},
		})
	}
	return conversations
}
