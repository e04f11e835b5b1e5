package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/throttlehq/throttle/internal/errors"
)

// Client sends a single authenticated request/response round trip over a
// fresh TCP connection, matching the one-JSON-object-per-connection framing
// every IPC endpoint in spec.md §6 uses.
type Client struct {
	Addr    string
	Token   string
	Timeout time.Duration
}

// NewClient builds a Client targeting 127.0.0.1:port.
func NewClient(port int, token string) *Client {
	return &Client{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Token:   token,
		Timeout: 5 * time.Second,
	}
}

// Call sends command (or event) with data and returns the decoded response.
func (c *Client) Call(name string, isEvent bool, data interface{}) (Response, error) {
	var raw json.RawMessage
	if data != nil {
		buf, err := json.Marshal(data)
		if err != nil {
			return Response{}, errors.Classify(errors.KindInvalidInput, err)
		}
		raw = buf
	}

	req := Request{Token: c.Token, Data: raw}
	if isEvent {
		req.Event = name
	} else {
		req.Command = name
	}

	conn, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
	if err != nil {
		return Response{}, errors.Classify(errors.KindTransport, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.Timeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, errors.Classify(errors.KindTransport, err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, errors.Classify(errors.KindTransport, err)
	}
	return resp, nil
}

// Command is sugar for Call(name, false, data).
func (c *Client) Command(name string, data interface{}) (Response, error) {
	return c.Call(name, false, data)
}

// Event is sugar for Call(name, true, data).
func (c *Client) Event(name string, data interface{}) (Response, error) {
	return c.Call(name, true, data)
}
