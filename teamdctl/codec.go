package teamdctl

import (
	"bytes"
	"fmt"
	"strings"
)

// Message headers of the teamd control protocol.
const (
	HeaderRequest        = "REQUEST"
	HeaderReplySucceeded = "REPLY_SUCCEEDED"
	HeaderReplyError     = "REPLY_ERROR"
)

// MethodStateDump asks teamd for its JSON state.
const MethodStateDump = "StateDump"

// MaxMessageSize bounds a single received message.
const MaxMessageSize = 64 * 1024

// EncodeRequest renders a request: the header, the method and each
// argument on its own newline-terminated line.
func EncodeRequest(method string, args ...string) []byte {
	var b bytes.Buffer
	b.WriteString(HeaderRequest)
	b.WriteByte('\n')
	b.WriteString(method)
	b.WriteByte('\n')
	for _, a := range args {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// ReplyError is a REPLY_ERROR from teamd.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("teamd replied with error: %s", e.Message)
}

// DecodeReply parses a reply and returns its payload. A REPLY_ERROR is
// returned as *ReplyError.
func DecodeReply(msg []byte) (string, error) {
	header, payload, _ := strings.Cut(string(msg), "\n")
	switch header {
	case HeaderReplySucceeded:
		return payload, nil
	case HeaderReplyError:
		return "", &ReplyError{Message: strings.TrimRight(payload, "\n")}
	default:
		return "", fmt.Errorf("malformed reply header %q", header)
	}
}

// trimBanner drops anything before the first '{' of a dump.
func trimBanner(dump string) string {
	if i := strings.IndexByte(dump, '{'); i >= 0 {
		return dump[i:]
	}
	return dump
}
