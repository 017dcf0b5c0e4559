package transport

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mew-run/gateway/internal/codec"
	"github.com/mew-run/gateway/pkg/protocol"
)

// reopenBackoff is the pause before reopening the read-side FIFO after the
// writer disconnects.
const reopenBackoff = 100 * time.Millisecond

// FifoChannel adapts a pair of named pipes, `<pid>-in` (Gateway writes) and
// `<pid>-out` (Gateway reads), to the Channel contract. The read side loops
// reopening on EOF so a restarted participant process can resume the
// channel; the write side buffers outbound frames until a reader is
// present, since opening a FIFO for writing blocks until some reader opens
// the other end.
type FifoChannel struct {
	inPath, outPath string

	queue *outboundQueue

	mu           sync.Mutex
	onEnvelope   func(protocol.Envelope)
	onStreamFrm  func([]byte)
	onDisconnect func()
	onError      func(error)

	disconnectOnce sync.Once
	stopCh         chan struct{}
	stopOnce       sync.Once

	writeMu sync.Mutex
	writer  *os.File
}

// NewFifoChannel creates (if needed) the FIFO pair under fifoDir for
// participantID and starts its read loop and write pump.
func NewFifoChannel(fifoDir, participantID string) (*FifoChannel, error) {
	inPath := filepath.Join(fifoDir, participantID+"-in")
	outPath := filepath.Join(fifoDir, participantID+"-out")

	for _, p := range []string{inPath, outPath} {
		if err := ensureFifo(p); err != nil {
			return nil, err
		}
	}

	c := &FifoChannel{inPath: inPath, outPath: outPath, stopCh: make(chan struct{})}
	// Overflow closes the channel off the sender's goroutine, same as the
	// WebSocket adapter: Close re-enters the queue's stop and the
	// disconnect callback.
	c.queue = newOutboundQueue(defaultQueueDepth, func() { go c.Close() })
	go c.queue.run(c.write, func(err error) { c.fireError(err); c.fireDisconnect() })
	go c.readLoop()
	return c, nil
}

func ensureFifo(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("transport: stat fifo %s: %w", path, err)
	}
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		return fmt.Errorf("transport: mkfifo %s: %w", path, err)
	}
	return nil
}

// write lazily opens the in-FIFO for writing (blocking until a reader
// attaches) the first time a frame is enqueued, then reuses the handle.
func (c *FifoChannel) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writer == nil {
		f, err := os.OpenFile(c.inPath, os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("transport: open fifo %s for write: %w", c.inPath, err)
		}
		c.writer = f
	}
	_, err := c.writer.Write(codec.EncodeFrame(frame))
	return err
}

func (c *FifoChannel) Send(env protocol.Envelope) error {
	data, err := codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.queue.enqueue(data)
	return nil
}

func (c *FifoChannel) SendStreamFrame(raw []byte) error {
	c.queue.enqueue(raw)
	return nil
}

func (c *FifoChannel) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.queue.stop()
	c.writeMu.Lock()
	if c.writer != nil {
		_ = c.writer.Close()
		c.writer = nil
	}
	c.writeMu.Unlock()
	c.fireDisconnect()
	return nil
}

func (c *FifoChannel) OnEnvelope(fn func(protocol.Envelope)) {
	c.mu.Lock()
	c.onEnvelope = fn
	c.mu.Unlock()
}

func (c *FifoChannel) OnStreamFrame(fn func([]byte)) {
	c.mu.Lock()
	c.onStreamFrm = fn
	c.mu.Unlock()
}

func (c *FifoChannel) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *FifoChannel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// readLoop opens the out-FIFO for reading and parses Content-Length frames
// until EOF (the writer disconnected) or a framing error (reported through
// the error callback), then reopens after a backoff so a restarted
// participant process can resume, until Close stops it.
func (c *FifoChannel) readLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		f, err := os.OpenFile(c.outPath, os.O_RDONLY, 0)
		if err != nil {
			c.fireError(fmt.Errorf("transport: open fifo %s for read: %w", c.outPath, err))
			select {
			case <-c.stopCh:
				return
			case <-time.After(reopenBackoff):
				continue
			}
		}

		fr := codec.NewFrameReader(f)
		for {
			body, err := fr.Next()
			if err != nil {
				if err != io.EOF {
					c.fireError(fmt.Errorf("transport: fifo framing: %w", err))
				}
				_ = f.Close()
				break
			}
			if codec.IsStreamFrame(body) {
				c.mu.Lock()
				fn := c.onStreamFrm
				c.mu.Unlock()
				if fn != nil {
					fn(body)
				}
				continue
			}
			env, decErr := codec.DecodeEnvelope(body)
			if decErr != nil {
				c.fireError(fmt.Errorf("transport: fifo decode: %w", decErr))
				continue
			}
			c.mu.Lock()
			fn := c.onEnvelope
			c.mu.Unlock()
			if fn != nil {
				fn(env)
			}
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(reopenBackoff):
		}
	}
}

func (c *FifoChannel) fireError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *FifoChannel) fireDisconnect() {
	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		fn := c.onDisconnect
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}
