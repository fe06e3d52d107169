// Package supervisor owns the proxy's listening socket and the
// per-connection worker lifecycle, per spec.md §4.7: accept, spawn a
// worker per connection, and shut down gracefully on SIGINT/SIGTERM.
package supervisor

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/rs/zerolog/log"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/blocklist"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/cache"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/worker"
)

// Config bundles everything New needs to bring up the proxy.
type Config struct {
	Port      int
	TTL       time.Duration
	CacheDir  string
	Blocklist *blocklist.Blocklist
}

// Supervisor owns the listener, the cache, and the set of in-flight
// worker goroutines.
type Supervisor struct {
	cfg Config
	ln  net.Listener

	cache *cache.Cache

	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

// setReuseAddr is the net.ListenConfig.Control callback that sets
// SO_REUSEADDR (and SO_REUSEPORT, where the platform constant exists)
// on the listening socket before bind, matching spec.md §4.7's literal
// requirement beyond what Go's default listener options provide.
func setReuseAddr(_ string, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// New builds a Supervisor: opens the cache directory and the listening
// socket but does not yet accept connections.
func New(cfg Config) (*Supervisor, error) {
	c, err := cache.New(cfg.CacheDir, cfg.TTL)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		cfg:   cfg,
		ln:    ln,
		cache: c,
	}, nil
}

// Run accepts connections until ctx is canceled, spawning one worker
// goroutine per connection and tracking them with an errgroup so
// shutdown can wait for in-flight work to drain.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(context.Background())
	s.group = g

	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	deps := worker.Deps{Cache: s.cache, Blocklist: s.cfg.Blocklist}

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return s.drain()
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() { //nolint:staticcheck // Temporary is deprecated but still reported by some net implementations.
				log.Warn().Err(err).Msg("temporary accept error, retrying")
				time.Sleep(50 * time.Millisecond)
				continue
			}
			log.Warn().Err(err).Msg("accept error, shutting down listener")
			return s.drain()
		}

		w := worker.New(conn, deps)
		g.Go(func() error {
			w.Serve(gctx)
			return nil
		})
	}
}

// drain waits for every in-flight worker to finish and releases the
// cache, called once the accept loop has exited.
func (s *Supervisor) drain() error {
	if s.group != nil {
		_ = s.group.Wait()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.cache.Shutdown(shutdownCtx)
}

// Close closes the listening socket exactly once, unblocking Accept in
// Run so it can observe ctx cancellation and begin draining.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ln.Close()
	})
	return s.closeErr
}

// Addr returns the listener's bound address, useful for tests that bind
// to port 0.
func (s *Supervisor) Addr() net.Addr {
	return s.ln.Addr()
}
