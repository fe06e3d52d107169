// Package request implements the proxy's request model: absolute-form
// header-line parsing, cacheability, key derivation, and the hop-by-hop
// header rewriting spec.md §4.3 requires before a request is forwarded.
package request

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/httpmsg"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
)

// DefaultPort is the port assumed when a request does not specify one.
const DefaultPort = 80

// headerLineRegex mirrors, capture-for-capture, the grammar in spec.md
// §4.3 and the original implementation's REQUEST_REGEX_* macros:
//
//	method SP (scheme "://")? hostname (":" port)? path ("?" query)? SP "HTTP/" digits
var headerLineRegex = regexp.MustCompile(
	`^(GET)[ \t]+(https?://)?([^/:?]+)?(:([0-9]+))?([^ ?]*)(\?([^ ]*))?[ \t]+(HTTP/[0-9]+(?:\.[0-9]+)?)`,
)

// Request is the proxy's parsed view of a client's request line, merged
// with Host-header recovery for the absolute-form fields it omits.
type Request struct {
	Method   string
	Scheme   string // "http", "https", or "" if unspecified
	Host     string
	Port     int // DefaultPort if unspecified
	Path     string
	Query    string // without the leading '?'; "" if absent
	Version  string
	Message  *httpmsg.Message
	ClientIP string
}

// Parse builds a Request from msg's header line, recovering the host (and
// optional port) from the Host header when the absolute-form URI omits
// it, or — per spec.md §9's preserved precedence note — overriding an
// absolute-form host with a disagreeing Host header.
func Parse(msg *httpmsg.Message, clientIP string) (*Request, error) {
	m := headerLineRegex.FindStringSubmatch(msg.HeaderLine)
	if m == nil {
		return nil, perr.Wrapf(perr.KindParseError, "header line does not match request grammar: %q", msg.HeaderLine)
	}

	req := &Request{
		Method:   m[1],
		Scheme:   strings.TrimSuffix(m[2], "://"),
		Host:     m[3],
		Path:     m[6],
		Version:  m[9],
		Message:  msg,
		ClientIP: clientIP,
	}
	if req.Path == "" {
		req.Path = "/"
	}
	if m[8] != "" {
		req.Query = m[8]
	}
	req.Port = DefaultPort
	if m[5] != "" {
		p, err := strconv.Atoi(m[5])
		if err != nil {
			return nil, perr.Wrapf(perr.KindParseError, "invalid port %q", m[5])
		}
		req.Port = p
	}

	if hostHeader, ok := msg.Headers.Get("Host"); ok && hostHeader != "" {
		hHost, hPort, hasPort := strings.Cut(hostHeader, ":")
		if req.Host == "" {
			req.Host = hHost
			if hasPort {
				if p, err := strconv.Atoi(hPort); err == nil {
					req.Port = p
				}
			}
		} else if req.Host != hHost {
			// Host header disagrees with the absolute-form URI; Host wins
			// per spec.md §9 ("the source lets the Host header overwrite
			// the URI host... implementations should preserve this
			// precedence").
			log.Warn().Str("uri_host", req.Host).Str("header_host", hHost).
				Msg("Host header disagrees with absolute-form URI host, Host wins")
			req.Host = hHost
			if hasPort {
				if p, err := strconv.Atoi(hPort); err == nil {
					req.Port = p
				}
			} else {
				req.Port = DefaultPort
			}
		}
	}

	return req, nil
}

// Cacheable reports whether r is eligible for the cache: method GET and
// host, path, version all set (spec.md §4.3). The Cache-Control: no-cache
// opt-out described in one source revision is intentionally not applied.
func (r *Request) Cacheable() bool {
	return r.Method == "GET" && r.Host != "" && r.Path != "" && r.Version != ""
}

// Key derives the cache key for a cacheable request: host concatenated
// with path, no separator (preserved for on-disk compatibility per
// spec.md §4.3). Returns "" for a non-cacheable request, signaling
// "do not cache".
func (r *Request) Key() string {
	if !r.Cacheable() {
		return ""
	}
	return r.Host + r.Path
}

// proxyHopByHop lists the headers the proxy strips before forwarding
// upstream, per spec.md §4.3.
var proxyHopByHop = []string{"Proxy-Connection", "Proxy-Authorization", "Proxy-Authenticate"}

// Rewrite applies spec.md §4.3's mandatory header rewriting in place,
// readying the request's message for forwarding to origin.
func (r *Request) Rewrite(proxyIdentifier string) {
	h := r.Message.Headers
	h.Set("Connection", "close")
	h.Set("Forwarded", r.ClientIP)
	h.Set("Via", "1.1 "+proxyIdentifier)
	for _, hop := range proxyHopByHop {
		h.Remove(hop)
	}
	hostValue := r.Host
	if r.Port != DefaultPort {
		hostValue = r.Host + ":" + strconv.Itoa(r.Port)
	}
	h.Set("Host", hostValue)
}
