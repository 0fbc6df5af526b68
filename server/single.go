package server

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/linecache/linecached/store"
)

// Single is the single-threaded blocking variant: one goroutine accepts a
// connection and drives its byte pump to completion before the next accept
// runs. There is no concurrency between connections; this variant exists
// for diagnostics, mirroring the source repository's reference
// single-threaded implementation.
type Single struct {
	store *store.Store
	opts  Options

	listener net.Listener
	done     chan struct{}
}

var _ Server = (*Single)(nil)

// NewSingle returns a Single bound to s, not yet listening.
func NewSingle(s *store.Store, opts Options) *Single {
	return &Single{store: s, opts: opts}
}

func (srv *Single) Start() error {
	ln, err := net.Listen("tcp", srv.opts.ListenAddress)
	if err != nil {
		return err
	}
	srv.listener = ln
	srv.done = make(chan struct{})

	go srv.acceptLoop()
	return nil
}

func (srv *Single) acceptLoop() {
	defer close(srv.done)
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			return
		}
		srv.serve(conn)
	}
}

func (srv *Single) serve(conn net.Conn) {
	defer closeQuietly(conn)

	id := uuid.NewString()
	srv.opts.logAccess("accept conn=%s remote=%s", id, conn.RemoteAddr())

	p := newPump(srv.store)
	buf := make([]byte, 4096)

	for {
		if srv.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(srv.opts.ReadTimeout))
		}

		n, readErr := conn.Read(buf)
		if n > 0 {
			srv.opts.activity()
			var replies [][]byte
			if perr := p.feed(buf[:n], &replies); perr != nil {
				_ = writeAll(conn, []byte("ERROR\r\n"))
				srv.opts.logAccess("terminate conn=%s reason=protocol_error: %v", id, perr)
				return
			}
			for _, reply := range replies {
				if werr := writeAll(conn, reply); werr != nil {
					srv.opts.logAccess("terminate conn=%s reason=write_error: %v", id, werr)
					return
				}
			}
		}

		if readErr != nil {
			srv.opts.logAccess("terminate conn=%s reason=%v", id, readErr)
			return
		}
	}
}

func (srv *Single) Stop() {
	if srv.listener != nil {
		_ = srv.listener.Close()
	}
}

func (srv *Single) Join() {
	if srv.done != nil {
		<-srv.done
	}
}
