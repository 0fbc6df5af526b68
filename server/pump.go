// Package server implements the three interchangeable connection-processing
// personalities described by the cache's network layer: a single-threaded
// blocking server, a thread-per-connection blocking server, and a
// multi-reactor non-blocking server. All three drive the same per-connection
// byte pump defined in this file.
package server

import (
	"github.com/linecache/linecached/command"
	"github.com/linecache/linecached/protocol"
	"github.com/linecache/linecached/store"
)

// pump implements the shared connection state machine: feed it bytes as
// they arrive off the socket, and it parses a command header, gathers the
// header's bulk argument (if any), executes against the backing store, and
// emits a complete, "\r\n"-terminated reply for each command in arrival
// order. It holds no socket of its own, so the same logic drives blocking
// and non-blocking variants alike.
type pump struct {
	store  *store.Store
	parser protocol.Parser

	hasCommand   bool
	cmd          protocol.Command
	argRemaining int
	arg          []byte
}

func newPump(s *store.Store) *pump {
	return &pump{store: s}
}

// feed processes data, appending one fully-formed reply per completed
// command to replies (in arrival order). It always consumes the entirety
// of data before returning; any bytes needed to complete a command that
// straddles this call and the next are retained internally by the parser
// and by the pump's own bulk-argument accumulator.
func (p *pump) feed(data []byte, replies *[][]byte) error {
	for {
		if !p.hasCommand {
			if len(data) == 0 {
				return nil
			}

			n, done, err := p.parser.Feed(data)
			data = data[n:]
			if err != nil {
				return err
			}
			if !done {
				return nil
			}

			cmd, bulkSize := p.parser.Build()
			p.cmd = cmd
			p.hasCommand = true
			p.arg = p.arg[:0]
			p.argRemaining = 0
			if cmd.Kind.IsStorage() {
				// +2 accounts for the data segment's trailing "\r\n",
				// which the connection layer (not the parser) is
				// responsible for consuming and stripping.
				p.argRemaining = bulkSize + 2
			}
			continue
		}

		if p.argRemaining > 0 {
			if len(data) == 0 {
				return nil
			}
			take := p.argRemaining
			if take > len(data) {
				take = len(data)
			}
			p.arg = append(p.arg, data[:take]...)
			data = data[take:]
			p.argRemaining -= take
			if p.argRemaining > 0 {
				return nil
			}
		}

		value := p.arg
		if p.cmd.Kind.IsStorage() {
			if len(value) >= 2 {
				value = value[:len(value)-2]
			} else {
				value = nil
			}
		}

		reply := command.Execute(p.store, p.cmd, value)
		out := make([]byte, 0, len(reply)+2)
		out = append(out, reply...)
		out = append(out, '\r', '\n')
		*replies = append(*replies, out)

		p.hasCommand = false
		p.cmd = protocol.Command{}
		p.arg = p.arg[:0]
	}
}
