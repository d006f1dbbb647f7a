package chat

import (
	"strings"
)

// MessageType classifies a protocol line.
type MessageType int

const (
	Unknown MessageType = iota
	Join
	Part
	Notice
	ClearChat
	HostTarget
	Chat
	Ping
	Cap
	GlobalUserState
	UserState
	RoomState
	Reconnect
	Numeric
)

var verbs = [...]string{
	Unknown:         "UNKNOWN",
	Join:            "JOIN",
	Part:            "PART",
	Notice:          "NOTICE",
	ClearChat:       "CLEARCHAT",
	HostTarget:      "HOSTTARGET",
	Chat:            "PRIVMSG",
	Ping:            "PING",
	Cap:             "CAP",
	GlobalUserState: "GLOBALUSERSTATE",
	UserState:       "USERSTATE",
	RoomState:       "ROOMSTATE",
	Reconnect:       "RECONNECT",
	Numeric:         "NUMERIC",
}

var byVerb = func() map[string]MessageType {
	m := make(map[string]MessageType, len(verbs))
	for t, v := range verbs {
		if MessageType(t) != Unknown && MessageType(t) != Numeric {
			m[v] = MessageType(t)
		}
	}
	return m
}()

// String returns the wire verb for t.
func (t MessageType) String() string {
	if t < 0 || int(t) >= len(verbs) {
		return verbs[Unknown]
	}
	return verbs[t]
}

// lookupType matches a token against the known verbs, ignoring case. Any
// three digit token is a numeric reply.
func lookupType(tok string) (MessageType, bool) {
	if len(tok) == 3 && isDigit(tok[0]) && isDigit(tok[1]) && isDigit(tok[2]) {
		return Numeric, true
	}
	t, ok := byVerb[strings.ToUpper(tok)]
	return t, ok
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Message is one parsed protocol line.
type Message struct {
	Type     MessageType
	Username string
	Channel  string
	Text     string
}

// cut returns the first whitespace separated token of s and the remainder
// with its leading whitespace removed.
func cut(s string) (tok, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

// maxTypeToken is the last token index searched for the message type.
const maxTypeToken = 2

// findType locates the message type among the leading tokens. It returns the
// token before the type, which is the source prefix when there is one, and
// the text after it.
func findType(line string) (prefix string, typ MessageType, rest string, ok bool) {
	rest = line
	for i := 0; i <= maxTypeToken; i++ {
		var tok string
		tok, rest = cut(rest)
		if tok == "" {
			return "", Unknown, "", false
		}
		if typ, ok = lookupType(tok); ok {
			return prefix, typ, rest, true
		}
		prefix = tok
	}
	return "", Unknown, "", false
}

// TypeOf returns the type of line without validating the rest of its shape.
func TypeOf(line string) (MessageType, bool) {
	_, typ, _, ok := findType(strings.TrimRight(line, "\r\n"))
	return typ, ok
}

// Parse classifies one line. The message type is the first known verb among
// the leading tokens; it may be preceded by a ":nick!user@host" prefix and, in
// malformed frames, by one stray token before that. What follows the type must
// be exactly a target and a payload. Lines of any other shape return false.
func Parse(line string) (Message, bool) {
	prefix, typ, rest, ok := findType(strings.TrimRight(line, "\r\n"))
	if !ok {
		return Message{}, false
	}

	msg := Message{Type: typ, Username: username(prefix)}

	target, payload := cut(rest)
	switch {
	case target == "":
		return Message{}, false
	case payload == "" && typ == Ping:
		// PING :server and PING server carry only the server name.
		msg.Text = strings.TrimPrefix(target, ":")
		return msg, true
	case payload == "":
		return Message{}, false
	}
	msg.Channel = strings.TrimPrefix(target, "#")
	msg.Text = strings.TrimPrefix(payload, ":")
	return msg, true
}

// username extracts nick from ":nick!user@host". Server prefixes without a
// user part yield "".
func username(prefix string) string {
	if !strings.HasPrefix(prefix, ":") {
		return ""
	}
	name, _, ok := strings.Cut(prefix[1:], "!")
	if !ok {
		return ""
	}
	return name
}

// ParseMembership recognises a JOIN or PART acknowledgement of the form
// ":nick!nick@host JOIN #channel", which Parse rejects because it has no
// payload.
func ParseMembership(line string) (Message, bool) {
	line = strings.TrimRight(line, "\r\n")
	prefix, rest := cut(line)
	verb, rest := cut(rest)
	target, rest := cut(rest)
	if rest != "" || target == "" || !strings.HasPrefix(target, "#") {
		return Message{}, false
	}
	typ, ok := lookupType(verb)
	if !ok || (typ != Join && typ != Part) {
		return Message{}, false
	}
	name := username(prefix)
	if name == "" {
		return Message{}, false
	}
	return Message{Type: typ, Username: name, Channel: strings.TrimPrefix(target, "#")}, true
}
