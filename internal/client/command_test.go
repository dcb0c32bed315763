package client

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr error
	}{
		{line: "broadcast hello world", want: Command{Kind: CmdBroadcast, Text: "hello world"}},
		{line: "  BROADCAST   spaced  out ", want: Command{Kind: CmdBroadcast, Text: "spaced  out"}},
		{line: "private bob see you", want: Command{Kind: CmdPrivate, Recipient: "bob", Text: "see you"}},
		{line: "private\tbob\thi", want: Command{Kind: CmdPrivate, Recipient: "bob", Text: "hi"}},
		{line: "members", want: Command{Kind: CmdMembers}},
		{line: "help", want: Command{Kind: CmdHelp}},
		{line: "Quit", want: Command{Kind: CmdQuit}},
		{line: "", wantErr: ErrEmpty},
		{line: "   ", wantErr: ErrEmpty},
		{line: "broadcast", wantErr: ErrUsage},
		{line: "private bob", wantErr: ErrUsage},
		{line: "private", wantErr: ErrUsage},
		{line: "shout hi", wantErr: ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseCommand(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}
