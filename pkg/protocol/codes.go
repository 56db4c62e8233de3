package protocol

import (
	"fmt"
	"strconv"
)

// Command identifies the operation carried by a frame. On the wire, commands
// are serialized as decimal strings ("0".."10") inside the header section.
type Command uint16

const (
	CmdRegister   Command = 0  // client -> server
	CmdLogin      Command = 1  // client -> server
	CmdSendMsg    Command = 2  // client -> server
	CmdGetMsgs    Command = 3  // client -> server
	CmdNotify     Command = 4  // server -> client (unsolicited)
	CmdLogout     Command = 5  // client -> server
	CmdStatus     Command = 6  // server -> client
	CmdAuth       Command = 7  // server -> client
	CmdMsgs       Command = 8  // server -> client
	CmdGetAllMsgs Command = 9  // client -> server
	CmdAllMsgs    Command = 10 // server -> client
)

// String returns a human-readable command name for logging.
func (c Command) String() string {
	switch c {
	case CmdRegister:
		return "register"
	case CmdLogin:
		return "login"
	case CmdSendMsg:
		return "sendmsg"
	case CmdGetMsgs:
		return "getmsgs"
	case CmdNotify:
		return "notify"
	case CmdLogout:
		return "logout"
	case CmdStatus:
		return "status"
	case CmdAuth:
		return "auth"
	case CmdMsgs:
		return "msgs"
	case CmdGetAllMsgs:
		return "getallmsgs"
	case CmdAllMsgs:
		return "allmsgs"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(c))
	}
}

// MarshalJSON encodes the command as a decimal string.
func (c Command) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.Itoa(int(c)))), nil
}

// UnmarshalJSON decodes a decimal-string command code.
func (c *Command) UnmarshalJSON(data []byte) error {
	n, err := unmarshalStringCode(data)
	if err != nil {
		return fmt.Errorf("invalid command code: %w", err)
	}
	*c = Command(n)
	return nil
}

// Status is the outcome code carried by server responses.
type Status uint16

const (
	StatusOK   Status = 0
	StatusFail Status = 1
)

// String returns a human-readable status name for logging.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFail:
		return "fail"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(s))
	}
}

// MarshalJSON encodes the status as a decimal string.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.Itoa(int(s)))), nil
}

// UnmarshalJSON decodes a decimal-string status code.
func (s *Status) UnmarshalJSON(data []byte) error {
	n, err := unmarshalStringCode(data)
	if err != nil {
		return fmt.Errorf("invalid status code: %w", err)
	}
	*s = Status(n)
	return nil
}

// unmarshalStringCode parses a JSON string holding a small decimal integer.
func unmarshalStringCode(data []byte) (uint16, error) {
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return 0, fmt.Errorf("code must be a JSON string: %s", data)
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("code must be a decimal string: %q", raw)
	}
	return uint16(n), nil
}
