// Package response implements the proxy's response model: status-line
// parsing, origin fetch, and synthetic error responses, per spec.md §4.4.
package response

import (
	"context"
	"regexp"
	"strconv"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/connio"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/httpmsg"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/request"
)

// statusLineRegex captures "HTTP/d.d SP status SP reason", the status
// line's mirror of the request grammar.
var statusLineRegex = regexp.MustCompile(`^(HTTP/[0-9]+(?:\.[0-9]+)?)[ \t]+([0-9]+)[ \t]+(.*)$`)

// Response is the proxy's parsed view of an upstream status line.
type Response struct {
	Version string
	Status  int
	Reason  string
	Message *httpmsg.Message
}

// Parse builds a Response from msg's header line.
func Parse(msg *httpmsg.Message) (*Response, error) {
	m := statusLineRegex.FindStringSubmatch(msg.HeaderLine)
	if m == nil {
		return nil, perr.Wrapf(perr.KindParseError, "status line does not match grammar: %q", msg.HeaderLine)
	}
	status, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, perr.Wrapf(perr.KindParseError, "invalid status code %q", m[2])
	}
	return &Response{
		Version: m[1],
		Status:  status,
		Reason:  m[3],
		Message: msg,
	}, nil
}

// Fetch opens a connection to req's origin, sends its (already rewritten)
// request message, and reads back a single response message. The
// connection is closed before Fetch returns, matching the no-upstream-
// keep-alive non-goal.
func Fetch(ctx context.Context, req *request.Request) (*Response, error) {
	conn, err := connio.ConnectToHost(ctx, req.Host, req.Port)
	if err != nil {
		return nil, perr.New(perr.KindFetchFailed, err)
	}
	defer conn.Close()

	if err := req.Message.Send(conn); err != nil {
		return nil, perr.New(perr.KindFetchFailed, err)
	}

	msg, err := httpmsg.Receive(conn)
	if err != nil {
		return nil, perr.New(perr.KindFetchFailed, err)
	}

	resp, err := Parse(msg)
	if err != nil {
		return nil, perr.New(perr.KindFetchFailed, err)
	}
	return resp, nil
}

// SynthesizeError builds a locally-generated error response: the body is
// the reason phrase itself, Content-Length set accordingly.
func SynthesizeError(status int, reason string) *Response {
	msg := httpmsg.New("HTTP/1.1 " + strconv.Itoa(status) + " " + reason)
	msg.SetBody([]byte(reason))
	return &Response{
		Version: "HTTP/1.1",
		Status:  status,
		Reason:  reason,
		Message: msg,
	}
}
