// Command client is a line-oriented test client for the yachat relay. It
// speaks the JSON command protocol over TCP and prints server responses,
// including unsolicited NOTIFY frames, as they arrive.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"yachat/pkg/protocol"
)

func main() {
	serverAddr := flag.String("server", "localhost:7667", "yachat server address (host:port)")
	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s\n", *serverAddr)
	fmt.Println("Commands: register <user> <pass> | login <user> <pass> | logout | send <user> <text> | msgs <user> | all | quit")

	// Server frames arrive on their own schedule (a NOTIFY can show up at
	// any moment), so printing happens on a separate goroutine.
	go receiveLoop(conn)

	var username, sessionID string

	stdin := bufio.NewScanner(os.Stdin)
	for prompt(); stdin.Scan(); prompt() {
		fields := strings.Fields(stdin.Text())
		if len(fields) == 0 {
			continue
		}

		var req *protocol.Request
		switch fields[0] {
		case "register":
			if len(fields) != 3 {
				fmt.Println("usage: register <user> <pass>")
				continue
			}
			req = protocol.NewRequest(protocol.CmdRegister,
				&protocol.AuthData{Username: fields[1], Password: fields[2]}, nil)
		case "login":
			if len(fields) != 3 {
				fmt.Println("usage: login <user> <pass>")
				continue
			}
			username = fields[1]
			req = protocol.NewRequest(protocol.CmdLogin,
				&protocol.AuthData{Username: fields[1], Password: fields[2]}, nil)
		case "logout":
			req = protocol.NewRequest(protocol.CmdLogout,
				&protocol.AuthData{Username: username, SessionID: sessionID}, nil)
		case "send":
			if len(fields) < 3 {
				fmt.Println("usage: send <user> <text>")
				continue
			}
			req = protocol.NewRequest(protocol.CmdSendMsg,
				&protocol.AuthData{Username: username, SessionID: sessionID},
				&protocol.TargetData{Username: fields[1], Message: strings.Join(fields[2:], " ")})
		case "msgs":
			if len(fields) != 2 {
				fmt.Println("usage: msgs <user>")
				continue
			}
			req = protocol.NewRequest(protocol.CmdGetMsgs,
				&protocol.AuthData{Username: username, SessionID: sessionID},
				&protocol.TargetData{Username: fields[1]})
		case "all":
			req = protocol.NewRequest(protocol.CmdGetAllMsgs,
				&protocol.AuthData{Username: username, SessionID: sessionID}, nil)
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
			continue
		}

		if err := protocol.WriteFrame(conn, req); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Session tokens ride back on the AUTH response; receiveLoop can't
		// update local state, so pick the token up here. A failed login
		// answers with STATUS instead of AUTH, hence the timeout.
		if req.Header.Command == protocol.CmdLogin {
			select {
			case token := <-loginTokens:
				sessionID = token
			case <-time.After(3 * time.Second):
			}
		}
	}
}

// loginTokens carries session tokens from receiveLoop to the input loop.
var loginTokens = make(chan string, 1)

func prompt() {
	fmt.Print("> ")
}

func receiveLoop(conn net.Conn) {
	scanner := protocol.NewFrameScanner(conn)
	for scanner.Scan() {
		resp, err := protocol.DecodeResponse(scanner.Bytes())
		if err != nil {
			fmt.Printf("\n[bad frame: %v]\n", err)
			continue
		}
		printResponse(resp)
		if resp.Kind == protocol.KindAuth {
			select {
			case loginTokens <- resp.SessionID:
			default:
			}
		}
	}
	fmt.Println("\nDisconnected")
	os.Exit(0)
}

func printResponse(resp *protocol.Response) {
	switch resp.Kind {
	case protocol.KindStatus:
		fmt.Printf("\n[%s] %s\n", resp.Status, resp.Msg)
	case protocol.KindAuth:
		fmt.Printf("\n[%s] %s\n", resp.Status, resp.Msg)
	case protocol.KindNotify:
		fmt.Printf("\n*** new message from %s ***\n", resp.Sender)
	case protocol.KindMsgs:
		fmt.Printf("\n[%s] conversation with %s:\n", resp.Status, resp.Username)
		printMessages(resp.Username, resp.Messages)
	case protocol.KindAllMsgs:
		fmt.Printf("\n[%s] all conversations:\n", resp.Status)
		for _, conv := range resp.Conversations {
			fmt.Printf("--- %s ---\n", conv.Username)
			printMessages(conv.Username, conv.Messages)
		}
	}
}

func printMessages(peer string, messages []protocol.Message) {
	for _, m := range messages {
		who := peer
		if m.Side == protocol.SideMine {
			who = "me"
		}
		fmt.Printf("  %s: %s\n", who, m.Text)
	}
}
