// internal/browser/pool.go
package browser

import (
	"context"
	"fmt"
	"sync"
)

// BrowserPool bounds the number of live rendering sessions. Sessions are
// started lazily, handed out exclusively and reused after Put.
type BrowserPool struct {
	config      *BrowserConfig
	factory     SessionFactory
	idle        chan Session
	slots       chan struct{}
	mu          sync.Mutex
	currentSize int
	closed      bool
}

// NewBrowserPool creates a pool of at most maxSize Chrome sessions.
func NewBrowserPool(config *BrowserConfig, maxSize int) *BrowserPool {
	return NewBrowserPoolWithFactory(config, maxSize, NewChromeSession)
}

// NewBrowserPoolWithFactory creates a pool whose sessions come from factory.
func NewBrowserPoolWithFactory(config *BrowserConfig, maxSize int, factory SessionFactory) *BrowserPool {
	if config == nil {
		config = DefaultBrowserConfig()
	}
	if maxSize <= 0 {
		maxSize = 2
	}
	return &BrowserPool{
		config:  config,
		factory: factory,
		idle:    make(chan Session, maxSize),
		slots:   make(chan struct{}, maxSize),
	}
}

// Get returns an idle session, starts a new one while under the limit, or
// waits for one to be returned.
func (p *BrowserPool) Get(ctx context.Context) (Session, error) {
	if p.isClosed() {
		return nil, fmt.Errorf("pool is closed")
	}

	select {
	case s := <-p.idle:
		return s, nil
	default:
	}

	select {
	case s := <-p.idle:
		return s, nil
	case p.slots <- struct{}{}:
		s, err := p.factory(p.config)
		if err != nil {
			<-p.slots
			return nil, fmt.Errorf("failed to create browser: %w", err)
		}
		p.mu.Lock()
		p.currentSize++
		p.mu.Unlock()
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a healthy session to the pool.
func (p *BrowserPool) Put(s Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		s.Close()
		p.release()
		return
	}
	select {
	case p.idle <- s:
	default:
		s.Close()
		p.release()
	}
}

// Discard closes a session that failed and frees its slot.
func (p *BrowserPool) Discard(s Session) {
	if s == nil {
		return
	}
	s.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release()
}

// release frees one slot; callers hold p.mu.
func (p *BrowserPool) release() {
	if p.currentSize > 0 {
		p.currentSize--
		<-p.slots
	}
}

// Render renders url on a pooled session. A session whose render failed for
// reasons other than cancellation is discarded rather than reused.
func (p *BrowserPool) Render(ctx context.Context, url string) (string, error) {
	s, err := p.Get(ctx)
	if err != nil {
		return "", err
	}

	html, err := s.Render(ctx, url)
	if err != nil && ctx.Err() == nil {
		p.Discard(s)
		return "", err
	}
	p.Put(s)
	return html, err
}

// Size returns the number of idle sessions.
func (p *BrowserPool) Size() int {
	return len(p.idle)
}

// TotalSize returns the number of live sessions.
func (p *BrowserPool) TotalSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentSize
}

func (p *BrowserPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close closes every idle session. Sessions still checked out are closed
// when they are returned.
func (p *BrowserPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for {
		select {
		case s := <-p.idle:
			s.Close()
			p.release()
		default:
			return nil
		}
	}
}
