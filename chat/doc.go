// Package chat is a small client for the IRC-derived Twitch chat protocol.
//
// It provides:
//   - Framer: reassembles CRLF-terminated lines from arbitrary read chunks.
//   - Parse / ParseMembership: classify one raw line into a Message.
//   - Worker: owns the TCP connection. It logs in anonymously, joins the
//     configured channels, answers PING itself and forwards everything else
//     on a FIFO channel. Any I/O fault clears readiness and reconnects with
//     capped exponential backoff until the context is cancelled.
//   - StdinSource: an offline Source that turns stdin lines into chat
//     messages, for driving the dispatcher without a network.
//
// Consumers only see the Source interface: a receive-only message channel
// and a Readiness flag.
package chat
