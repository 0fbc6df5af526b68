//go:build !linux

package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linecache/linecached/store"
)

// Reactor, on platforms without epoll, degrades to a goroutine-per-
// connection loop bounded by a semaphore sized ReactorWorkers. It is
// functionally correct (same wire behavior, same per-connection reply
// ordering) but is a portability fallback, not the epoll-backed
// one-shot-readiness reactor built for Linux.
type Reactor struct {
	store *store.Store
	opts  Options

	listener   net.Listener
	sem        chan struct{}
	wg         sync.WaitGroup
	acceptDone chan struct{}

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	stopped bool
}

var _ Server = (*Reactor)(nil)

func NewReactor(s *store.Store, opts Options) *Reactor {
	if opts.ReactorWorkers <= 0 {
		opts.ReactorWorkers = 4
	}
	return &Reactor{
		store: s,
		opts:  opts,
		sem:   make(chan struct{}, opts.ReactorWorkers),
		conns: make(map[net.Conn]struct{}),
	}
}

func (srv *Reactor) Start() error {
	ln, err := net.Listen("tcp", srv.opts.ListenAddress)
	if err != nil {
		return err
	}
	srv.listener = ln
	srv.acceptDone = make(chan struct{})
	go srv.acceptLoop()
	return nil
}

func (srv *Reactor) acceptLoop() {
	defer close(srv.acceptDone)
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			return
		}

		srv.mu.Lock()
		if srv.stopped {
			srv.mu.Unlock()
			closeQuietly(conn)
			continue
		}
		srv.conns[conn] = struct{}{}
		srv.mu.Unlock()

		srv.sem <- struct{}{}
		srv.wg.Add(1)
		go srv.serve(conn)
	}
}

func (srv *Reactor) serve(conn net.Conn) {
	defer srv.wg.Done()
	defer func() { <-srv.sem }()
	defer closeQuietly(conn)

	id := uuid.NewString()
	srv.opts.logAccess("accept conn=%s remote=%s", id, conn.RemoteAddr())

	p := newPump(srv.store)
	buf := make([]byte, 4096)

	pollInterval := srv.opts.ReadTimeout
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := conn.Read(buf)
		if n > 0 {
			srv.opts.activity()
			var replies [][]byte
			if perr := p.feed(buf[:n], &replies); perr != nil {
				_ = writeAll(conn, []byte("ERROR\r\n"))
				srv.opts.logAccess("terminate conn=%s reason=protocol_error: %v", id, perr)
				break
			}
			failed := false
			for _, reply := range replies {
				if werr := writeAll(conn, reply); werr != nil {
					srv.opts.logAccess("terminate conn=%s reason=write_error: %v", id, werr)
					failed = true
					break
				}
			}
			if failed {
				break
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				srv.mu.Lock()
				stopped := srv.stopped
				srv.mu.Unlock()
				if !stopped {
					continue
				}
			}
			srv.opts.logAccess("terminate conn=%s reason=%v", id, err)
			break
		}
	}

	srv.mu.Lock()
	delete(srv.conns, conn)
	srv.mu.Unlock()
}

func (srv *Reactor) Stop() {
	srv.mu.Lock()
	srv.stopped = true
	for conn := range srv.conns {
		_ = writeAll(conn, []byte(shutdownMessage))
		closeQuietly(conn)
	}
	srv.conns = make(map[net.Conn]struct{})
	srv.mu.Unlock()

	if srv.listener != nil {
		_ = srv.listener.Close()
	}
}

func (srv *Reactor) Join() {
	if srv.acceptDone != nil {
		<-srv.acceptDone
	}
	srv.wg.Wait()
}
