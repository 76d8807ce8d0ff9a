package scene

import (
	"sync"
	"time"
)

// FrameSource delivers frame ticks to a render loop
type FrameSource interface {
	Frames() <-chan time.Time
	Stop()
}

// Ticker produces frames at a fixed rate
type Ticker struct {
	t *time.Ticker
}

// NewTicker creates a frame source running at fps frames per second
func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = 60
	}
	return &Ticker{t: time.NewTicker(time.Second / time.Duration(fps))}
}

func (t *Ticker) Frames() <-chan time.Time { return t.t.C }
func (t *Ticker) Stop()                    { t.t.Stop() }

// ManualFrames delivers a frame each time Tick is called
type ManualFrames struct {
	ch   chan time.Time
	done chan struct{}
	once sync.Once
}

// NewManualFrames creates a manual frame source
func NewManualFrames() *ManualFrames {
	return &ManualFrames{ch: make(chan time.Time), done: make(chan struct{})}
}

func (m *ManualFrames) Frames() <-chan time.Time { return m.ch }

// Tick hands one frame to the loop. It returns false once the source is
// stopped.
func (m *ManualFrames) Tick() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-m.done:
		return false
	}
}

func (m *ManualFrames) Stop() {
	m.once.Do(func() { close(m.done) })
}

// Loop calls a frame function once per frame received from its source.
// Running is the single authoritative state of the loop.
type Loop struct {
	mu      sync.Mutex
	frame   func(time.Time)
	running bool
	src     FrameSource
	stop    chan struct{}
	done    chan struct{}
}

// NewLoop creates a stopped loop
func NewLoop(frame func(time.Time)) *Loop {
	return &Loop{frame: frame}
}

// Start begins consuming frames from src. It returns false, leaving src
// untouched, when the loop is already running.
func (l *Loop) Start(src FrameSource) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false
	}
	l.running = true
	l.src = src
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(src.Frames(), l.stop, l.done)
	return true
}

func (l *Loop) run(frames <-chan time.Time, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case t, ok := <-frames:
			if !ok {
				return
			}
			l.frame(t)
		}
	}
}

// Stop halts the loop and waits for the frame in progress to finish. Calling
// Stop on a stopped loop does nothing.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	src, stop, done := l.src, l.stop, l.done
	l.src = nil
	l.mu.Unlock()

	close(stop)
	src.Stop()
	<-done
}

// Running reports whether the loop is consuming frames
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
