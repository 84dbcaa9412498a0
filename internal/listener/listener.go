/*
Package listener implements the background listening path.

A Listener owns a bounded queue of utterances and a single worker that
feeds them to the engine and hands each reply to a Sink (the text-to-speech
stand-in). It has its own stop flag: Stop drains whatever is queued and
waits for the worker to exit.
*/
package listener

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultQueueSize is the default buffer size of the utterance queue.
const DefaultQueueSize = 64

// ErrStopped is returned when submitting to a stopped listener.
var ErrStopped = errors.New("listener stopped")

// Interpreter turns an utterance into a reply.
type Interpreter interface {
	Interpret(ctx context.Context, raw string) string
}

// Reply is delivered to the Sink for every processed utterance.
type Reply struct {
	Input    string    `json:"input"`
	Response string    `json:"response"`
	At       time.Time `json:"at"`
}

// Sink receives replies. Deliver is called from the worker goroutine.
type Sink interface {
	Deliver(Reply)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Reply)

// Deliver calls f(r).
func (f SinkFunc) Deliver(r Reply) { f(r) }

// Listener feeds queued utterances to an Interpreter in the background.
type Listener struct {
	interp Interpreter
	sink   Sink
	logger *zap.Logger

	queue    chan string
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.RWMutex
	listening bool
	stopped   bool
}

// New creates a listener and starts its worker. A queueSize <= 0 selects
// DefaultQueueSize.
func New(interp Interpreter, sink Sink, queueSize int, logger *zap.Logger) *Listener {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = SinkFunc(func(Reply) {})
	}

	l := &Listener{
		interp:    interp,
		sink:      sink,
		logger:    logger,
		queue:     make(chan string, queueSize),
		stopChan:  make(chan struct{}),
		listening: true,
	}

	l.wg.Add(1)
	go l.run()

	return l
}

// Submit queues an utterance without blocking. It returns false if the
// listener is paused or stopped, or the queue is full.
func (l *Listener) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped || !l.listening {
		return false
	}

	select {
	case l.queue <- text:
		return true
	default:
		l.logger.Warn("listener queue full, dropping utterance", zap.Int("queue_size", cap(l.queue)))
		return false
	}
}

// SubmitWait queues an utterance, waiting for room in the queue.
func (l *Listener) SubmitWait(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	for {
		l.mu.RLock()
		if l.stopped {
			l.mu.RUnlock()
			return ErrStopped
		}
		select {
		case l.queue <- text:
			l.mu.RUnlock()
			return nil
		default:
		}
		l.mu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return ErrStopped
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Feed reads lines from r and submits each one, waiting when the queue is
// full. It returns at EOF, on a read error or when ctx is done.
func (l *Listener) Feed(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := l.SubmitWait(ctx, scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Pause stops accepting new utterances; queued ones are still processed.
func (l *Listener) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listening = false
}

// Resume accepts utterances again.
func (l *Listener) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listening = true
}

// IsListening reports whether Submit currently accepts utterances.
func (l *Listener) IsListening() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listening && !l.stopped
}

// QueueLen returns the number of utterances waiting in the queue.
func (l *Listener) QueueLen() int {
	return len(l.queue)
}

// Stop processes the utterances already queued, then stops the worker.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()

		close(l.stopChan)
		l.wg.Wait()
	})
}

func (l *Listener) run() {
	defer l.wg.Done()

	for {
		select {
		case text := <-l.queue:
			l.handle(text)

		case <-l.stopChan:
			// Drain whatever is left, then exit.
			for {
				select {
				case text := <-l.queue:
					l.handle(text)
				default:
					return
				}
			}
		}
	}
}

func (l *Listener) handle(text string) {
	response := l.interp.Interpret(context.Background(), text)
	l.sink.Deliver(Reply{Input: text, Response: response, At: time.Now()})
}
