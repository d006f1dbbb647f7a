package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Source delivers chat messages and reports when it is ready.
type Source interface {
	Messages() <-chan Message
	Ready() *Readiness
	Run(ctx context.Context) error
}

var (
	_ Source = (*Worker)(nil)
	_ Source = (*StdinSource)(nil)
)

// StdinSource turns each non-blank line of an input stream into a chat
// message from a fixed user on a fixed channel. It is ready immediately.
type StdinSource struct {
	in       io.Reader
	channel  string
	username string
	out      chan Message
	ready    *Readiness
}

// NewStdinSource reads lines from in.
func NewStdinSource(in io.Reader, channel, username string) *StdinSource {
	return &StdinSource{
		in:       in,
		channel:  normalizeChannel(channel),
		username: username,
		out:      make(chan Message),
		ready:    NewReadiness(),
	}
}

func (s *StdinSource) Messages() <-chan Message { return s.out }
func (s *StdinSource) Ready() *Readiness        { return s.ready }

// Run forwards lines until the input ends or ctx is cancelled. End of input
// returns nil and closes Messages.
func (s *StdinSource) Run(ctx context.Context) error {
	defer close(s.out)
	s.ready.Set()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			msg := Message{Type: Chat, Username: s.username, Channel: s.channel, Text: line}
			select {
			case s.out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
