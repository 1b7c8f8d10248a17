package logmux

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"
)

// Stream names carried on events.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamSystem = "procspawn"
)

// Event is one line of child output, or a line synthesized by the mux.
type Event struct {
	Timestamp time.Time
	Process   string
	PID       int
	Stream    string
	Level     string
	Message   string
}

// Mux fans in output lines from the streams of one or more children and
// delivers them via a bounded channel. Reader sources block when the buffer
// is full, so a slow consumer stalls the child on its pipe instead of losing
// output. Channel sources are lossy: when the buffer would overflow their
// events are dropped and a synthesized warning event reports how many.
type Mux struct {
	out chan Event

	mu     sync.Mutex
	drops  map[string]dropRecord
	inputs sync.WaitGroup
}

type dropRecord struct {
	count int
	pid   int
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan Event, size),
		drops: make(map[string]dropRecord),
	}
}

// Output exposes the muxed event channel.
func (m *Mux) Output() <-chan Event {
	return m.out
}

// Add registers a new source channel. The mux consumes events until the
// source channel is closed.
func (m *Mux) Add(source <-chan Event) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for evt := range source {
			m.deliver(normalize(evt))
		}
	}()
}

// AddReader scans r line by line until end-of-file and feeds each line as an
// event of the given stream. Lines are never dropped. Lines longer than the
// scanner limit end the stream with a synthesized error event.
func (m *Mux) AddReader(process string, pid int, stream string, r io.Reader) {
	if r == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			m.send(normalize(Event{
				Process: process,
				PID:     pid,
				Stream:  stream,
				Message: scanner.Text(),
			}))
		}
		if err := scanner.Err(); err != nil {
			m.send(Event{
				Timestamp: time.Now(),
				Process:   process,
				PID:       pid,
				Stream:    StreamSystem,
				Level:     "error",
				Message:   fmt.Sprintf("read %s: %v", stream, err),
			})
		}
	}()
}

// Close waits for all sources to be drained, emits any pending drop metadata,
// and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) deliver(evt Event) {
	if !m.flushPending(evt.Process) {
		m.recordDrop(evt.Process, evt.PID)
		return
	}
	if m.trySend(evt) {
		return
	}
	m.recordDrop(evt.Process, evt.PID)
}

// send waits for room in the output buffer, reporting drops recorded for
// the same process first.
func (m *Mux) send(evt Event) {
	if rec := m.takeDrops(evt.Process); rec.count != 0 {
		m.blockingSend(synthesizeDropEvent(evt.Process, rec))
	}
	m.blockingSend(evt)
}

func (m *Mux) flushPending(process string) bool {
	for {
		rec := m.takeDrops(process)
		if rec.count == 0 {
			return true
		}
		meta := synthesizeDropEvent(process, rec)
		if m.trySend(meta) {
			continue
		}
		m.recordDropWithCount(process, rec.count, rec.pid)
		return false
	}
}

func (m *Mux) takeDrops(process string) dropRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.drops[process]
	if rec.count != 0 {
		delete(m.drops, process)
	}
	return rec
}

func (m *Mux) recordDrop(process string, pid int) {
	m.recordDropWithCount(process, 1, pid)
}

func (m *Mux) recordDropWithCount(process string, count int, pid int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.drops[process]
	rec.count += count
	if pid != 0 || rec.pid == 0 {
		rec.pid = pid
	}
	m.drops[process] = rec
}

func (m *Mux) flushDrops() {
	pending := m.collectDrops()
	for process, rec := range pending {
		meta := synthesizeDropEvent(process, rec)
		m.blockingSend(meta)
	}
}

func (m *Mux) collectDrops() map[string]dropRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.drops) == 0 {
		return nil
	}
	dup := make(map[string]dropRecord, len(m.drops))
	for process, rec := range m.drops {
		if rec.count == 0 {
			continue
		}
		dup[process] = rec
	}
	m.drops = make(map[string]dropRecord)
	return dup
}

func (m *Mux) trySend(evt Event) bool {
	select {
	case m.out <- evt:
		return true
	default:
		return false
	}
}

func (m *Mux) blockingSend(evt Event) {
	m.out <- evt
}

func normalize(evt Event) Event {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Stream == "" {
		evt.Stream = StreamStdout
	}
	if evt.Level == "" {
		if evt.Stream == StreamStderr {
			evt.Level = "warn"
		} else {
			evt.Level = "info"
		}
	}
	return evt
}

func synthesizeDropEvent(process string, rec dropRecord) Event {
	return Event{
		Timestamp: time.Now(),
		Process:   process,
		PID:       rec.pid,
		Stream:    StreamSystem,
		Level:     "warn",
		Message:   fmt.Sprintf("dropped=%d", rec.count),
	}
}
