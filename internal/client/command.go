package client

import (
	"errors"
	"fmt"
	"strings"
)

// CommandKind names an interactive command.
type CommandKind string

// Commands understood by the prompt.
const (
	CmdBroadcast CommandKind = "broadcast"
	CmdPrivate   CommandKind = "private"
	CmdMembers   CommandKind = "members"
	CmdHelp      CommandKind = "help"
	CmdQuit      CommandKind = "quit"
)

// Help is printed on start and for the help command.
const Help = `Commands:
  broadcast <message>               send a message to all members
  private <recipient-id> <message>  send a private message
  members                           show the current member list
  help                              show this help
  quit                              leave the group`

var (
	// ErrEmpty is returned for a blank input line.
	ErrEmpty = errors.New("empty command")
	// ErrUnknownCommand is returned for input that names no command.
	ErrUnknownCommand = errors.New("unknown command, type 'help' for available commands")
	// ErrUsage is returned when a command is missing arguments.
	ErrUsage = errors.New("usage")
)

// Command is one parsed input line.
type Command struct {
	Kind      CommandKind
	Recipient string
	Text      string
}

// ParseCommand splits line into a command. Command names are case-insensitive
// and the message text keeps its inner spacing.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmpty
	}

	name, rest := cut(line)
	switch kind := CommandKind(strings.ToLower(name)); kind {
	case CmdBroadcast:
		if rest == "" {
			return Command{}, fmt.Errorf("%w: broadcast <message>", ErrUsage)
		}
		return Command{Kind: kind, Text: rest}, nil

	case CmdPrivate:
		recipient, text := cut(rest)
		if recipient == "" || text == "" {
			return Command{}, fmt.Errorf("%w: private <recipient-id> <message>", ErrUsage)
		}
		return Command{Kind: kind, Recipient: recipient, Text: text}, nil

	case CmdMembers, CmdHelp, CmdQuit:
		return Command{Kind: kind}, nil

	default:
		return Command{}, ErrUnknownCommand
	}
}

// cut splits s at the first run of whitespace.
func cut(s string) (head, tail string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, isSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
