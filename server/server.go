package server

import (
	"io"
	"log"
	"net"
	"time"
)

// Options configures any of the three server variants. Not every field is
// meaningful to every variant: MaxWorkers only bounds Threaded,
// ReactorWorkers only sizes Reactor's worker pool.
type Options struct {
	ListenAddress string
	ReadTimeout   time.Duration

	MaxWorkers     int
	ReactorWorkers int

	AccessLogger *log.Logger
	ErrorLogger  *log.Logger

	// OnActivity, if set, is called once per successful read carrying at
	// least one byte, from whichever goroutine performed the read. Used to
	// drive an idle shutdown timer; left nil, it costs nothing.
	OnActivity func()
}

func (o Options) activity() {
	if o.OnActivity != nil {
		o.OnActivity()
	}
}

func (o Options) logAccess(format string, args ...interface{}) {
	if o.AccessLogger != nil {
		o.AccessLogger.Printf(format, args...)
	}
}

func (o Options) logError(format string, args ...interface{}) {
	if o.ErrorLogger != nil {
		o.ErrorLogger.Printf(format, args...)
	}
}

// Server is the lifecycle common to all three connection-processing
// variants: Start begins accepting, Stop begins a graceful shutdown, Join
// blocks until every resource the variant owns (goroutines, sockets) has
// been released.
type Server interface {
	Start() error
	Stop()
	Join()
}

// writeAll writes buf to w in full, treating a short write without an
// accompanying error as impossible for the net.Conn implementations this
// package drives (consistent with spec: any failed send, partial or not,
// that cannot be completed moves the connection to its error/closing
// path).
func writeAll(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}
	return nil
}

// shutdownMessage is sent, with a bare "\n" (not "\r\n", preserved from the
// source as an administrative message distinct from the wire protocol's
// own line terminator), to every still-open socket when the server begins
// a graceful Stop.
const shutdownMessage = "Sorry, the server is shutting down\n"

// noFreeWorkersMessage is sent to a connection rejected by Threaded because
// MaxWorkers has been reached.
const noFreeWorkersMessage = "No free workers, try later\n"

func closeQuietly(c net.Conn) {
	_ = c.Close()
}
