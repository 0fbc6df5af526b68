//go:build linux

package server

import (
	"net"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/linecache/linecached/store"
)

const maxEpollEvents = 128

// Reactor is the multi-reactor non-blocking variant: one acceptor
// goroutine plus a fixed pool of ReactorWorkers goroutines share a single
// epoll instance. Every connection is registered one-shot (EPOLLONESHOT),
// so the reactor hands out at most one readiness event per connection at
// a time and only one worker ever operates on a given connection
// concurrently; a worker re-arms the connection once it finishes a pump
// slice.
type Reactor struct {
	store *store.Store
	opts  Options

	listener *net.TCPListener
	epfd     int

	acceptWG sync.WaitGroup
	workerWG sync.WaitGroup

	mu      sync.Mutex
	conns   map[int]*reactorConn
	stopped bool
}

var _ Server = (*Reactor)(nil)

// reactorConn is one connection's reactor-side state. bufMu guards the
// pump and the alive flag, so a worker reading the socket never races
// with another worker (or Stop) reporting an error/hangup for the same
// fd. replyMu is a separate, smaller lock: the reader enqueues replies,
// the writer drains them, and they must not block each other for the
// full duration of a read.
type reactorConn struct {
	id   string
	fd   int
	conn *net.TCPConn

	bufMu sync.Mutex
	pump  *pump
	alive bool

	replyMu sync.Mutex
	queue   [][]byte
	head    int
}

// NewReactor returns a Reactor bound to s, not yet listening.
func NewReactor(s *store.Store, opts Options) *Reactor {
	if opts.ReactorWorkers <= 0 {
		opts.ReactorWorkers = runtime.NumCPU()
	}
	return &Reactor{
		store: s,
		opts:  opts,
		epfd:  -1,
		conns: make(map[int]*reactorConn),
	}
}

func (srv *Reactor) Start() error {
	addr, err := net.ResolveTCPAddr("tcp", srv.opts.ListenAddress)
	if err != nil {
		return err
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		ln.Close()
		return err
	}

	srv.listener = ln
	srv.epfd = epfd

	srv.acceptWG.Add(1)
	go srv.acceptLoop()

	for i := 0; i < srv.opts.ReactorWorkers; i++ {
		srv.workerWG.Add(1)
		go srv.workerLoop()
	}
	return nil
}

func (srv *Reactor) acceptLoop() {
	defer srv.acceptWG.Done()
	for {
		conn, err := srv.listener.AcceptTCP()
		if err != nil {
			return
		}
		srv.onAccept(conn)
	}
}

// dupAndDetach duplicates conn's file descriptor and closes the Go-side
// wrapper, so the duplicate is the sole descriptor left referencing the
// socket and Go's own runtime netpoller stops tracking it. From this
// point the reactor's epoll instance is the only thing driving readiness
// for this socket.
func dupAndDetach(conn *net.TCPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return -1, err
	}

	var fd int
	var dupErr error
	ctrlErr := raw.Control(func(sysfd uintptr) {
		fd, dupErr = unix.Dup(int(sysfd))
	})
	conn.Close()

	if ctrlErr != nil {
		return -1, ctrlErr
	}
	if dupErr != nil {
		return -1, dupErr
	}
	return fd, nil
}

func (srv *Reactor) onAccept(conn *net.TCPConn) {
	fd, err := dupAndDetach(conn)
	if err != nil {
		srv.opts.logError("failed to take over accepted connection: %v", err)
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		srv.opts.logError("failed to set O_NONBLOCK: %v", err)
		unix.Close(fd)
		return
	}

	rc := &reactorConn{
		id:    uuid.NewString(),
		fd:    fd,
		pump:  newPump(srv.store),
		alive: true,
	}

	srv.mu.Lock()
	if srv.stopped {
		srv.mu.Unlock()
		unix.Close(fd)
		return
	}
	srv.conns[fd] = rc
	srv.mu.Unlock()

	srv.opts.logAccess("accept conn=%s fd=%d", rc.id, fd)

	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	if err := unix.EpollCtl(srv.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		srv.opts.logError("epoll_ctl(ADD) failed for conn=%s: %v", rc.id, err)
		srv.closeConn(rc)
	}
}

func (srv *Reactor) workerLoop() {
	defer srv.workerWG.Done()

	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		// Closing epfd does not wake a thread blocked in epoll_wait, so
		// workers wait with a bounded timeout and exit once Stop has run.
		srv.mu.Lock()
		stopped := srv.stopped
		srv.mu.Unlock()
		if stopped {
			return
		}

		n, err := unix.EpollWait(srv.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		for i := 0; i < n; i++ {
			srv.handleEvent(int(events[i].Fd), events[i].Events)
		}
	}
}

func (srv *Reactor) handleEvent(fd int, mask uint32) {
	srv.mu.Lock()
	rc, ok := srv.conns[fd]
	srv.mu.Unlock()
	if !ok {
		return
	}

	if mask&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		srv.closeConn(rc)
		return
	}

	if mask&unix.EPOLLIN != 0 && !srv.readReady(rc) {
		srv.closeConn(rc)
		return
	}
	if mask&unix.EPOLLOUT != 0 && !srv.writeReady(rc) {
		srv.closeConn(rc)
		return
	}

	srv.rearm(rc)
}

// readReady drains rc's socket until EAGAIN (one-shot readiness may cover
// more bytes than a single read syscall returns), feeding each chunk to
// the connection's pump and enqueuing any replies produced. It returns
// false when the connection should be closed: peer hangup, a non-transient
// read error, or a protocol error.
func (srv *Reactor) readReady(rc *reactorConn) bool {
	rc.bufMu.Lock()
	defer rc.bufMu.Unlock()
	if !rc.alive {
		return false
	}

	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(rc.fd, buf)
		if n > 0 {
			srv.opts.activity()
			var replies [][]byte
			if perr := rc.pump.feed(buf[:n], &replies); perr != nil {
				srv.enqueueReply(rc, []byte("ERROR\r\n"))
				return false
			}
			for _, r := range replies {
				srv.enqueueReply(rc, r)
			}
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return true
			}
			return false
		}
		if n == 0 {
			return false
		}
	}
}

// enqueueReply appends reply to rc's outbound queue and opportunistically
// attempts to flush immediately, so short replies don't have to wait for
// the next readiness event. If the write would block, rearm (called by
// the caller's event-handling path) adds EPOLLOUT interest.
func (srv *Reactor) enqueueReply(rc *reactorConn, reply []byte) {
	rc.replyMu.Lock()
	rc.queue = append(rc.queue, reply)
	rc.replyMu.Unlock()
	srv.writeReady(rc)
}

// writeReady drains the head of rc's reply queue with vectored-style
// sequential writes, advancing a head-offset on partial sends and
// dropping fully-sent replies. It returns false on any write failure
// other than EAGAIN, per spec: any send that cannot complete moves the
// connection to its error path.
func (srv *Reactor) writeReady(rc *reactorConn) bool {
	rc.replyMu.Lock()
	defer rc.replyMu.Unlock()

	for len(rc.queue) > 0 {
		cur := rc.queue[0][rc.head:]
		n, err := unix.Write(rc.fd, cur)
		if n > 0 {
			rc.head += n
			if rc.head >= len(rc.queue[0]) {
				rc.queue = rc.queue[1:]
				rc.head = 0
			}
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return true
			}
			return false
		}
		if n <= 0 {
			return false
		}
	}
	return true
}

// rearm re-registers rc for its next readiness event. The event mask
// reverts to read-only once the reply queue has drained; while replies
// remain queued, write interest stays armed alongside read interest.
func (srv *Reactor) rearm(rc *reactorConn) {
	rc.bufMu.Lock()
	alive := rc.alive
	rc.bufMu.Unlock()
	if !alive {
		return
	}

	rc.replyMu.Lock()
	hasPending := len(rc.queue) > 0
	rc.replyMu.Unlock()

	events := uint32(unix.EPOLLIN | unix.EPOLLONESHOT)
	if hasPending {
		events |= unix.EPOLLOUT
	}

	ev := unix.EpollEvent{Events: events, Fd: int32(rc.fd)}
	if err := unix.EpollCtl(srv.epfd, unix.EPOLL_CTL_MOD, rc.fd, &ev); err != nil {
		srv.closeConn(rc)
	}
}

func (srv *Reactor) closeConn(rc *reactorConn) {
	rc.bufMu.Lock()
	if !rc.alive {
		rc.bufMu.Unlock()
		return
	}
	rc.alive = false
	rc.bufMu.Unlock()

	_ = unix.EpollCtl(srv.epfd, unix.EPOLL_CTL_DEL, rc.fd, nil)
	unix.Close(rc.fd)

	srv.mu.Lock()
	delete(srv.conns, rc.fd)
	srv.mu.Unlock()

	srv.opts.logAccess("terminate conn=%s", rc.id)
}

// Stop notifies every open connection, shuts each down, stops accepting
// new connections, and marks the reactor stopped. Join waits for the
// acceptor and worker goroutines to actually exit.
func (srv *Reactor) Stop() {
	srv.mu.Lock()
	if srv.stopped {
		srv.mu.Unlock()
		return
	}
	srv.stopped = true
	conns := make([]*reactorConn, 0, len(srv.conns))
	for _, rc := range srv.conns {
		conns = append(conns, rc)
	}
	srv.mu.Unlock()

	for _, rc := range conns {
		rc.bufMu.Lock()
		alive := rc.alive
		rc.bufMu.Unlock()
		if alive {
			_, _ = unix.Write(rc.fd, []byte(shutdownMessage))
			srv.closeConn(rc)
		}
	}

	if srv.listener != nil {
		_ = srv.listener.Close()
	}
}

func (srv *Reactor) Join() {
	srv.acceptWG.Wait()
	if srv.epfd >= 0 {
		unix.Close(srv.epfd)
	}
	srv.workerWG.Wait()
}
