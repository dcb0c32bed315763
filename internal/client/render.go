package client

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Tyrowin/groupchat/internal/protocol"
)

// RenderMembers prints a member list as an aligned table with the host marked.
func RenderMembers(w io.Writer, members []protocol.MemberInfo) error {
	if _, err := fmt.Fprintln(w, "=== Current Group Members ==="); err != nil {
		return err
	}
	if len(members) == 0 {
		_, err := fmt.Fprintln(w, "No members connected")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, m := range members {
		marker := ""
		if m.IsHost {
			marker = "[Host]"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Endpoint, marker); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// RenderMessage prints an inbound chat or control message. MEMBER_LIST is
// rendered with RenderMembers.
func RenderMessage(w io.Writer, msg protocol.Message) error {
	var err error
	switch msg.Kind {
	case protocol.KindBroadcast:
		_, err = fmt.Fprintf(w, "Received from %s: %s\n", msg.SenderID, msg.Content)
	case protocol.KindPrivate:
		_, err = fmt.Fprintf(w, "Received from %s (private): %s\n", msg.SenderID, msg.Content)
	case protocol.KindHost:
		_, err = fmt.Fprintf(w, "Host is now %s\n", msg.Content)
	case protocol.KindError:
		_, err = fmt.Fprintf(w, "Error: %s\n", msg.Content)
	case protocol.KindMemberList:
		err = RenderMembers(w, msg.Members)
	}
	return err
}
