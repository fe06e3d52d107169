// Package worker implements the per-connection orchestrator that glues
// the message engine, request/response pipeline, blocklist, and cache
// together, per spec.md §4.6.
package worker

import (
	"context"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/blocklist"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/cache"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/connio"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/httpmsg"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/request"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/response"
)

// ProxyIdentifier is the value Via headers advertise for this proxy.
const ProxyIdentifier = "netsys-proxy"

// Deps bundles the collaborators a Worker needs, all supplied by the
// supervisor at startup.
type Deps struct {
	Cache     *cache.Cache
	Blocklist *blocklist.Blocklist
}

// Worker drives a single accepted connection through receive, parse,
// blocklist, rewrite, cache-or-fetch, and respond.
type Worker struct {
	deps Deps
	conn *connio.Connection
	log  zerolog.Logger
}

// New wraps an accepted net.Conn as a Worker, attaching a connection_id
// to every log line it produces for correlation across concurrent
// connections.
func New(conn net.Conn, deps Deps) *Worker {
	connID := uuid.Must(uuid.NewV7()).String()
	return &Worker{
		deps: deps,
		conn: connio.Wrap(conn),
		log:  log.With().Str("connection_id", connID).Logger(),
	}
}

// Serve runs the connection to completion: at most one request is
// processed (no upstream keep-alive reuse, per spec.md's non-goals),
// after which the client connection is closed.
func (w *Worker) Serve(ctx context.Context) {
	defer w.conn.Close()

	requestID := uuid.Must(uuid.NewV7()).String()
	wlog := w.log.With().Str("request_id", requestID).Logger()

	msg, err := httpmsg.Receive(w.conn)
	if err != nil {
		// A peer that never sent a byte (idle timeout, immediate close)
		// gets no response at all: there is no request line to answer.
		if perr.Is(err, perr.KindIdleTimeout) || perr.Is(err, perr.KindPeerClosed) {
			wlog.Debug().Err(err).Msg("connection closed before a request arrived")
			return
		}
		wlog.Warn().Err(err).Msg("failed to receive request")
		w.respondError(wlog, 400, "Bad Request")
		return
	}

	clientIP := w.conn.RemoteIP
	req, err := request.Parse(msg, clientIP)
	if err != nil {
		wlog.Warn().Err(err).Msg("failed to parse request")
		w.respondError(wlog, 400, "Bad Request")
		return
	}
	wlog = wlog.With().Str("host", req.Host).Str("path", req.Path).Logger()

	if w.deps.Blocklist != nil && w.deps.Blocklist.Check(req.Host) {
		wlog.Info().Msg("blocked host, rejecting")
		w.respondError(wlog, 403, "Forbidden")
		return
	}

	req.Rewrite(ProxyIdentifier)

	key := req.Key()
	var resp *response.Response
	if key == "" {
		wlog.Debug().Msg("request not cacheable, fetching directly")
		resp, err = response.Fetch(ctx, req)
	} else {
		resp, err = w.cachedFetch(ctx, wlog, key, req)
	}

	if err != nil {
		wlog.Warn().Err(err).Msg("failed to obtain response")
		w.respondError(wlog, perr.StatusOf(err), statusReason(perr.StatusOf(err)))
		return
	}

	if err := resp.Message.Send(w.conn); err != nil {
		wlog.Warn().Err(err).Msg("failed to send response to client")
	}
}

// cachedFetch resolves a cacheable request through the cache, deriving
// a resolver that performs the origin fetch and serializes the raw
// response bytes into the cache's writer on success.
func (w *Worker) cachedFetch(ctx context.Context, wlog zerolog.Logger, key string, req *request.Request) (*response.Response, error) {
	resolver := func(dst io.Writer) error {
		resp, err := response.Fetch(ctx, req)
		if err != nil {
			return err
		}
		_, err = dst.Write(resp.Message.Bytes())
		return err
	}

	data, err := w.deps.Cache.Get(ctx, key, resolver)
	if err != nil {
		return nil, err
	}

	msg, err := httpmsg.ParseBytes(data)
	if err != nil {
		return nil, perr.New(perr.KindCacheIOError, err)
	}
	return response.Parse(msg)
}

func (w *Worker) respondError(wlog zerolog.Logger, status int, reason string) {
	resp := response.SynthesizeError(status, reason)
	if err := resp.Message.Send(w.conn); err != nil {
		wlog.Warn().Err(err).Msg("failed to send synthetic error response")
	}
}

func statusReason(status int) string {
	switch status {
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 504:
		return "Gateway Timeout"
	default:
		return "Internal Server Error"
	}
}
