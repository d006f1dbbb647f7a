package chat

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Message
	}{
		{"privmsg", ":alice!alice@alice.tmi.twitch.tv PRIVMSG #drgreengiant :forward please\r\n",
			Message{Type: Chat, Username: "alice", Channel: "drgreengiant", Text: "forward please"}},
		{"inner spacing kept", ":bob!bob@host PRIVMSG #c :look   up  now",
			Message{Type: Chat, Username: "bob", Channel: "c", Text: "look   up  now"}},
		{"lower case verb", ":bob!bob@host privmsg #c :hi",
			Message{Type: Chat, Username: "bob", Channel: "c", Text: "hi"}},
		{"no prefix", "PRIVMSG #c :hello",
			Message{Type: Chat, Channel: "c", Text: "hello"}},
		{"server notice", ":tmi.twitch.tv NOTICE * :Login authentication failed",
			Message{Type: Notice, Channel: "*", Text: "Login authentication failed"}},
		{"part with payload", ":carol!carol@host PART #c :bye",
			Message{Type: Part, Username: "carol", Channel: "c", Text: "bye"}},
		{"clearchat", ":tmi.twitch.tv CLEARCHAT #c :spammer",
			Message{Type: ClearChat, Channel: "c", Text: "spammer"}},
		{"hosttarget", ":tmi.twitch.tv HOSTTARGET #c :other 10",
			Message{Type: HostTarget, Channel: "c", Text: "other 10"}},
		{"numeric", ":tmi.twitch.tv 001 justinfan12345 :Welcome, GLHF!",
			Message{Type: Numeric, Channel: "justinfan12345", Text: "Welcome, GLHF!"}},
		{"roomstate", ":tmi.twitch.tv ROOMSTATE #c :x",
			Message{Type: RoomState, Channel: "c", Text: "x"}},
		{"reconnect", ":tmi.twitch.tv RECONNECT #c :now",
			Message{Type: Reconnect, Channel: "c", Text: "now"}},
		{"ping bare", "PING :tmi.twitch.tv",
			Message{Type: Ping, Text: "tmi.twitch.tv"}},
		{"ping without colon", "PING tmi.twitch.tv",
			Message{Type: Ping, Text: "tmi.twitch.tv"}},
		{"ping with prefix", ":tmi.twitch.tv PING :tmi.twitch.tv\r\n",
			Message{Type: Ping, Text: "tmi.twitch.tv"}},
		{"stray leading token", "https://example.com :dave!dave@host PRIVMSG #c :sprint",
			Message{Type: Chat, Username: "dave", Channel: "c", Text: "sprint"}},
		{"empty payload", ":e!e@h PRIVMSG #c :",
			Message{Type: Chat, Username: "e", Channel: "c", Text: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.line)
			if !ok {
				t.Fatalf("Parse(%q) failed", tt.line)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"\r\n",
		"hello world",
		":alice!alice@host",
		":alice!alice@host PRIVMSG",
		":alice!alice@host PRIVMSG #c",
		":alice!alice@host JOIN #c",
		"a b c PRIVMSG #c :too deep",
		"PING",
		"12 #c :not numeric",
		"1234 #c :not numeric",
		":x!x@x FOO #c :unknown verb",
		"\x00\xff\xfe PRIVMSG",
	}
	for _, line := range lines {
		if m, ok := Parse(line); ok {
			t.Errorf("Parse(%q) = %+v, want failure", line, m)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	types := []MessageType{Join, Part, Notice, ClearChat, HostTarget, Chat, Cap, GlobalUserState, UserState, RoomState, Reconnect, Ping}
	for _, typ := range types {
		in := Message{Type: typ, Username: "viewer", Channel: "chan", Text: "some text  here"}
		line := ":" + in.Username + "!" + in.Username + "@host " + typ.String() + " #" + in.Channel + " :" + in.Text + "\r\n"
		got, ok := Parse(line)
		if !ok || got != in {
			t.Errorf("%s: Parse(%q) = %+v, %v", typ, line, got, ok)
		}
	}
}

func TestParseMembership(t *testing.T) {
	m, ok := ParseMembership(":justinfan123!justinfan123@justinfan123.tmi.twitch.tv JOIN #DrGreenGiant\r\n")
	if !ok || m.Type != Join || m.Username != "justinfan123" || m.Channel != "DrGreenGiant" {
		t.Fatalf("join ack = %+v, %v", m, ok)
	}
	if m, ok := ParseMembership(":a!a@h PART #c"); !ok || m.Type != Part {
		t.Fatalf("part ack = %+v, %v", m, ok)
	}
	for _, line := range []string{
		":a!a@h PRIVMSG #c",
		":a!a@h JOIN #c :extra",
		":tmi.twitch.tv JOIN #c",
		":a!a@h JOIN c",
		"JOIN #c",
	} {
		if _, ok := ParseMembership(line); ok {
			t.Errorf("ParseMembership(%q) accepted", line)
		}
	}
}

func TestMessageTypeString(t *testing.T) {
	if Chat.String() != "PRIVMSG" || Numeric.String() != "NUMERIC" || MessageType(99).String() != "UNKNOWN" {
		t.Fatal("unexpected verb names")
	}
}
