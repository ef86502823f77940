package server

import (
	"log"
	"net"
	"sync"
	"time"
)

const forwardQueueDepth = 256

// forwardTask is one media payload bound for an already-resolved list
// of destinations. Tasks never consult the room maps.
type forwardTask struct {
	dests []net.Conn
	data  []byte
}

// forwarder is the bounded worker pool that writes video/audio frames
// so a slow receiver cannot stall the sender's read loop. Delivery is
// best-effort: when the queue is full the frame is dropped and counted.
type forwarder struct {
	logger *log.Logger
	tasks  chan forwardTask
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newForwarder(logger *log.Logger, workers int) *forwarder {
	if workers <= 0 {
		workers = 4
	}
	f := &forwarder{
		logger: logger,
		tasks:  make(chan forwardTask, forwardQueueDepth),
	}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		go f.run()
	}
	return f
}

func (f *forwarder) run() {
	defer f.wg.Done()
	for task := range f.tasks {
		for _, conn := range task.dests {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			n, err := conn.Write(task.data)
			if err != nil {
				f.logger.Printf("media forward to %s failed after %d/%d bytes: %v",
					conn.RemoteAddr(), n, len(task.data), err)
				metrics().writeErrors.Inc()
				continue
			}
			metrics().bytesForwarded.Add(float64(n))
		}
	}
}

// submit enqueues a frame without blocking. Frames arriving after stop
// are dropped; the mutex keeps the send from racing the channel close.
func (f *forwarder) submit(dests []net.Conn, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.tasks <- forwardTask{dests: dests, data: data}:
	default:
		f.logger.Printf("forward queue full, dropping %d-byte frame for %d peers",
			len(data), len(dests))
		metrics().framesDropped.Inc()
	}
}

func (f *forwarder) stop() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.tasks)
	}
	f.mu.Unlock()
	f.wg.Wait()
}
