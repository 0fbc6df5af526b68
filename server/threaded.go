package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linecache/linecached/store"
)

// Threaded is the thread-per-connection blocking variant: the acceptor
// spawns one goroutine per accepted connection, up to MaxWorkers. Beyond
// that cap it politely rejects the connection instead of accepting it.
type Threaded struct {
	store *store.Store
	opts  Options

	listener   net.Listener
	acceptDone chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	running bool
	current int
	sockets map[net.Conn]struct{}
}

var _ Server = (*Threaded)(nil)

// NewThreaded returns a Threaded bound to s, not yet listening. A
// MaxWorkers of zero or less is treated as an unset value and defaults to
// 256.
func NewThreaded(s *store.Store, opts Options) *Threaded {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 256
	}
	t := &Threaded{
		store:   s,
		opts:    opts,
		sockets: make(map[net.Conn]struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (srv *Threaded) Start() error {
	ln, err := net.Listen("tcp", srv.opts.ListenAddress)
	if err != nil {
		return err
	}
	srv.listener = ln
	srv.acceptDone = make(chan struct{})

	srv.mu.Lock()
	srv.running = true
	srv.mu.Unlock()

	go srv.acceptLoop()
	return nil
}

func (srv *Threaded) acceptLoop() {
	defer close(srv.acceptDone)
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			return
		}

		srv.mu.Lock()
		if !srv.running {
			srv.mu.Unlock()
			closeQuietly(conn)
			continue
		}
		if srv.current >= srv.opts.MaxWorkers {
			srv.mu.Unlock()
			srv.opts.logAccess("reject remote=%s reason=no_free_workers", conn.RemoteAddr())
			_ = writeAll(conn, []byte(noFreeWorkersMessage))
			closeQuietly(conn)
			continue
		}
		srv.current++
		srv.sockets[conn] = struct{}{}
		srv.mu.Unlock()

		go srv.worker(conn)
	}
}

func (srv *Threaded) worker(conn net.Conn) {
	id := uuid.NewString()
	srv.opts.logAccess("accept conn=%s remote=%s", id, conn.RemoteAddr())

	p := newPump(srv.store)
	buf := make([]byte, 4096)

runLoop:
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
				break runLoop
			}
			for _, reply := range replies {
				if werr := writeAll(conn, reply); werr != nil {
					srv.opts.logAccess("terminate conn=%s reason=write_error: %v", id, werr)
					break runLoop
				}
			}
		}

		if readErr != nil {
			srv.opts.logAccess("terminate conn=%s reason=%v", id, readErr)
			break runLoop
		}
	}

	closeQuietly(conn)

	srv.mu.Lock()
	delete(srv.sockets, conn)
	srv.current--
	if srv.current == 0 {
		srv.cond.Broadcast()
	}
	srv.mu.Unlock()
}

// Stop notifies every open connection that the server is shutting down,
// shuts each of them down, flips running false, and closes the listening
// socket to unblock Accept. It does not wait for workers to exit; call
// Join for that.
func (srv *Threaded) Stop() {
	srv.mu.Lock()
	for conn := range srv.sockets {
		_ = writeAll(conn, []byte(shutdownMessage))
		closeQuietly(conn)
	}
	srv.sockets = make(map[net.Conn]struct{})
	srv.running = false
	srv.mu.Unlock()

	if srv.listener != nil {
		_ = srv.listener.Close()
	}
}

// Join blocks until every worker has exited, closes any residual sockets,
// and waits for the accept goroutine to return.
func (srv *Threaded) Join() {
	srv.mu.Lock()
	for srv.current != 0 {
		srv.cond.Wait()
	}
	for conn := range srv.sockets {
		closeQuietly(conn)
	}
	srv.mu.Unlock()

	if srv.acceptDone != nil {
		<-srv.acceptDone
	}
}
