package server

import "yachat/pkg/protocol"

// notifyUser pushes an unsolicited NOTIFY frame to the target's live
// connection, telling it that from has sent a new message. Every failure
// path is logged and swallowed: the sender's SENDMSG already succeeded
// because persistence succeeded, and an offline target picks the message up
// via GETMSGS later.
func (s *Server) notifyUser(target, from string) {
	connID, err := s.sessions.ConnectionOf(target)
	if err != nil {
		debugLog.Printf("notify: user %q has no active session", target)
		if s.metrics != nil {
			s.metrics.RecordNotificationDropped()
		}
		return
	}

	sc, ok := s.registry.Lookup(connID)
	if !ok {
		// The connection was torn down between the session lookup and now;
		// same outcome as an offline target.
		debugLog.Printf("notify: connection %d for user %q is gone", connID, target)
		if s.metrics != nil {
			s.metrics.RecordNotificationDropped()
		}
		return
	}

	if err := sc.WriteFrame(protocol.NewNotifyResponse(from)); err != nil {
		debugLog.Printf("notify: write to user %q failed: %v", target, err)
		if s.metrics != nil {
			s.metrics.RecordNotificationDropped()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordNotificationDelivered()
	}
	debugLog.Printf("notify: sent a notification to user %q (from %q)", target, from)
}
