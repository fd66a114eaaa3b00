// Package monitor talks to the monitoring API with hand built HTTP/1.1
// requests over a plain TCP connection: one request per connection, no
// retries.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Paths served by the monitoring API.
const (
	HealthPath  = "/api/monitor/up"
	DataPath    = "/api/monitor/data"
	CurrentPath = "/api/monitor/current"
	HistoryPath = "/api/monitor/history"
)

// SuccessMessage is the body text the API answers an accepted PUT with.
const SuccessMessage = "Monitoring data received successfully."

const (
	requestBufSize  = 512
	responseBufSize = 512
	bodyBufSize     = 100
)

var (
	ErrRequestTooLarge = errors.New("monitor: request does not fit in buffer")
	ErrInvalidReading  = errors.New("monitor: reading is not a finite number")
)

// Ack is what came back on the connection, at most responseBufSize-1 bytes.
type Ack struct {
	Raw string
	// RecvErr is a receive failure. It is reported, not returned, because
	// the request already reached the server.
	RecvErr error
}

// OK reports whether the status line is 200 OK.
func (a Ack) OK() bool {
	return strings.Contains(a.Raw, "HTTP/1.1 200 OK") || strings.Contains(a.Raw, "HTTP/1.0 200 OK")
}

// Confirmed reports whether the API acknowledged stored data.
func (a Ack) Confirmed() bool {
	return a.OK() && strings.Contains(a.Raw, SuccessMessage)
}

type Client struct {
	Host    string
	Port    int
	Dialer  *net.Dialer
	Timeout time.Duration // deadline for one exchange, zero for none
}

// ParseAddr splits a host:port address with a numeric port.
func ParseAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid server address %q: missing host", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid server address %q: bad port", addr)
	}
	return host, port, nil
}

// NewClient builds a client for a host:port address.
func NewClient(addr string) (*Client, error) {
	host, port, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		Host:    host,
		Port:    port,
		Dialer:  &net.Dialer{},
		Timeout: 10 * time.Second,
	}, nil
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HealthCheck sends GET /api/monitor/up. Only a failure to connect or send
// is an error; an unexpected answer is logged as a warning.
func (c *Client) HealthCheck(ctx context.Context) (Ack, error) {
	req, err := healthRequest(c.Addr())
	if err != nil {
		return Ack{}, err
	}
	ack, err := c.exchange(ctx, req)
	if err != nil {
		return ack, fmt.Errorf("health check: %w", err)
	}
	switch {
	case ack.RecvErr != nil:
		log.Printf("WARNING: Failed to receive health check response: %v", ack.RecvErr)
	case ack.Raw != "" && !ack.OK():
		log.Printf("WARNING: Health check did not return HTTP 200 OK.")
	}
	return ack, nil
}

// PutData sends one temperature/humidity sample with PUT /api/monitor/data.
func (c *Client) PutData(ctx context.Context, temperature, humidity float64) (Ack, error) {
	req, err := dataRequest(c.Addr(), temperature, humidity)
	if err != nil {
		return Ack{}, err
	}
	ack, err := c.exchange(ctx, req)
	if err != nil {
		return ack, fmt.Errorf("monitoring data: %w", err)
	}
	switch {
	case ack.RecvErr != nil:
		log.Printf("WARNING: Failed to receive monitoring data response: %v", ack.RecvErr)
	case ack.Raw == "":
	case !ack.OK():
		log.Printf("WARNING: Monitoring data PUT did not return HTTP 200 OK.")
	case !ack.Confirmed():
		log.Printf("WARNING: Did not receive expected success message in PUT response body.")
	}
	return ack, nil
}

func (c *Client) exchange(ctx context.Context, req []byte) (Ack, error) {
	d := c.Dialer
	if d == nil {
		d = &net.Dialer{}
	}
	conn, err := d.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		return Ack{}, fmt.Errorf("connection failed to %s: %w", c.Addr(), err)
	}
	defer conn.Close()
	log.Printf("Connected to server %s", c.Addr())

	if c.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	n, err := conn.Write(req)
	if err != nil {
		return Ack{}, fmt.Errorf("send request: %w", err)
	}
	if n < len(req) {
		return Ack{}, fmt.Errorf("incomplete request sent (%d/%d bytes)", n, len(req))
	}

	resp, err := readResponse(conn)
	return Ack{Raw: resp, RecvErr: err}, nil
}

// readResponse reads until the response is complete, the peer closes or
// the buffer is full. A deadline that expires after some bytes arrived
// still counts as a response.
func readResponse(conn net.Conn) (string, error) {
	buf := make([]byte, responseBufSize-1)
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if complete(buf[:n]) {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) || (n > 0 && errors.Is(err, os.ErrDeadlineExceeded)) {
				err = nil
			}
			return string(buf[:n]), err
		}
	}
	return string(buf[:n]), nil
}

// complete reports whether resp holds the headers and, when the server
// announced one, a body of Content-Length bytes.
func complete(resp []byte) bool {
	head, body, ok := strings.Cut(string(resp), "\r\n\r\n")
	if !ok {
		return false
	}
	for _, line := range strings.Split(head, "\r\n")[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		length, err := strconv.Atoi(strings.TrimSpace(value))
		return err == nil && len(body) >= length
	}
	return false
}

func healthRequest(host string) ([]byte, error) {
	buf := make([]byte, 0, requestBufSize)
	buf = fmt.Appendf(buf,
		"GET %s HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Connection: close\r\n"+
			"\r\n",
		HealthPath, host)
	if len(buf) >= requestBufSize {
		return nil, fmt.Errorf("%w: health check needs %d bytes", ErrRequestTooLarge, len(buf))
	}
	return buf, nil
}

func dataRequest(host string, temperature, humidity float64) ([]byte, error) {
	for _, v := range []float64{temperature, humidity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrInvalidReading
		}
	}

	body := make([]byte, 0, bodyBufSize)
	body = fmt.Appendf(body, `{"temperature": %.2f, "humidity": %.2f}`, temperature, humidity)
	if len(body) >= bodyBufSize {
		return nil, fmt.Errorf("%w: body needs %d bytes, %d available", ErrRequestTooLarge, len(body), bodyBufSize)
	}

	req := make([]byte, 0, requestBufSize)
	req = fmt.Appendf(req,
		"PUT %s HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Content-Type: application/json\r\n"+
			"Content-Length: %d\r\n"+
			"Connection: close\r\n"+
			"\r\n",
		DataPath, host, len(body))
	if len(req) >= requestBufSize {
		return nil, fmt.Errorf("%w: headers need %d bytes", ErrRequestTooLarge, len(req))
	}
	if total := len(req) + len(body); total >= requestBufSize {
		return nil, fmt.Errorf("%w: %d needed, %d available", ErrRequestTooLarge, total, requestBufSize)
	}
	return append(req, body...), nil
}
