package mjpeg

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const boundary = "frame"

// Publisher fans the latest annotated JPEG out to any number of
// multipart/x-mixed-replace HTTP viewers. Slow viewers skip frames; the
// capture loop never waits on them.
type Publisher struct {
	keepalive time.Duration

	jpegMutex  sync.RWMutex
	latestJPEG []byte

	notifyMutex sync.Mutex
	viewers     map[chan struct{}]struct{}
}

func NewPublisher(keepalive time.Duration) *Publisher {
	if keepalive <= 0 {
		keepalive = 2 * time.Second
	}
	return &Publisher{
		keepalive: keepalive,
		viewers:   make(map[chan struct{}]struct{}),
	}
}

// Publish makes jpeg the current frame. The slice must not be modified
// afterwards.
func (p *Publisher) Publish(jpeg []byte) {
	if len(jpeg) == 0 {
		return
	}
	p.jpegMutex.Lock()
	p.latestJPEG = jpeg
	p.jpegMutex.Unlock()

	p.notifyMutex.Lock()
	for notify := range p.viewers {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	p.notifyMutex.Unlock()
}

// Viewers is the number of connected streams.
func (p *Publisher) Viewers() int {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	return len(p.viewers)
}

func (p *Publisher) subscribe() chan struct{} {
	notify := make(chan struct{}, 1)
	p.notifyMutex.Lock()
	p.viewers[notify] = struct{}{}
	p.notifyMutex.Unlock()
	return notify
}

func (p *Publisher) unsubscribe(notify chan struct{}) {
	p.notifyMutex.Lock()
	delete(p.viewers, notify)
	p.notifyMutex.Unlock()
}

func (p *Publisher) latest() []byte {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	return p.latestJPEG
}

// ServeHTTP streams frames until the client goes away.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	notify := p.subscribe()
	defer p.unsubscribe(notify)

	log.Debug().Str("remote", r.RemoteAddr).Msg("MJPEG viewer connected")
	defer log.Debug().Str("remote", r.RemoteAddr).Msg("MJPEG viewer disconnected")

	writePart := func(jpeg []byte) bool {
		if len(jpeg) == 0 {
			return true
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg)); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writePart(p.latest()) {
		return
	}

	keepaliveTicker := time.NewTicker(p.keepalive)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-keepaliveTicker.C:
		}
		if !writePart(p.latest()) {
			return
		}
	}
}
