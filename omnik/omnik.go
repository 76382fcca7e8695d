// Package omnik implements the proprietary TCP request/response protocol of
// Omnik solar inverter Wi-Fi kits: request frame construction, a one-shot
// transport and the byte-offset response decoder.
package omnik

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPort is the TCP port of the Wi-Fi kit on stock firmware.
	DefaultPort = 8899
	// DefaultTimeout bounds each suspension point of a fetch cycle.
	DefaultTimeout = 10 * time.Second

	// maxResponseLength is the read ceiling; real frames are around 100 bytes.
	maxResponseLength = 1024
)

// Inverter queries a single Omnik inverter. Each fetch cycle is one
// connection: build request, send, single bounded read, close. Cycles share
// no state, but the caller must not run two cycles against the same device
// concurrently; the device cannot interleave them.
type Inverter struct {
	addr    string
	serial  int64
	timeout time.Duration
	log     *zap.Logger
}

type Options struct {
	Timeout time.Duration // per suspension point, DefaultTimeout when zero
	Log     *zap.Logger   // zap.NewNop() when nil
}

// New validates the connection parameters and returns a client. No network
// traffic happens here; use TestConnection for reachability.
func New(host string, port int, serialNumber int64, opts Options) (*Inverter, error) {
	if host == "" {
		return nil, errors.New("omnik: host required")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("omnik: port %d out of range", port)
	}
	if _, err := BuildRequest(serialNumber); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Inverter{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		serial:  serialNumber,
		timeout: opts.Timeout,
		log:     opts.Log,
	}, nil
}

// GetData runs one full fetch cycle and decodes the response. Every failure
// surfaces as *ConnectionError; short or garbage responses are not failures
// and come back as an offline record. Panics anywhere in the cycle are
// recovered and rewrapped so callers never see more than one error kind.
func (inv *Inverter) GetData(ctx context.Context) (data Data, err error) {
	defer func() {
		if r := recover(); r != nil {
			inv.log.Error("panic during fetch cycle", zap.Any("panic", r))
			data = Data{Status: StatusOffline}
			err = &ConnectionError{Kind: ErrUnexpected, Addr: inv.addr, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	raw, err := inv.fetchRaw(ctx)
	if err != nil {
		return Data{Status: StatusOffline}, err
	}
	return parseData(raw), nil
}

// TestConnection performs the network half of a fetch cycle and discards the
// response. Meant for validating host, port and serial during setup.
func (inv *Inverter) TestConnection(ctx context.Context) error {
	_, err := inv.fetchRaw(ctx)
	return err
}

// fetchRaw is one request/response round trip. The connect and the read each
// get the full timeout budget, not a shared one; the connection is closed on
// every exit path.
func (inv *Inverter) fetchRaw(ctx context.Context) ([]byte, error) {
	request, err := BuildRequest(inv.serial)
	if err != nil {
		return nil, &ConnectionError{Kind: ErrUnexpected, Addr: inv.addr, Err: err}
	}

	dialer := net.Dialer{Timeout: inv.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", inv.addr)
	if err != nil {
		kind := ErrRefused
		if isTimeout(err) {
			kind = ErrTimeout
		}
		return nil, &ConnectionError{Kind: kind, Addr: inv.addr, Err: err}
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(inv.deadline(ctx)); err != nil {
		return nil, &ConnectionError{Kind: ErrUnexpected, Addr: inv.addr, Err: err}
	}
	if _, err := conn.Write(request); err != nil {
		kind := ErrUnexpected
		if isTimeout(err) {
			kind = ErrTimeout
		}
		return nil, &ConnectionError{Kind: kind, Addr: inv.addr, Err: err}
	}

	// Fresh budget for the response read.
	if err := conn.SetReadDeadline(inv.deadline(ctx)); err != nil {
		return nil, &ConnectionError{Kind: ErrUnexpected, Addr: inv.addr, Err: err}
	}

	buf := make([]byte, maxResponseLength)
	n, err := conn.Read(buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, &ConnectionError{Kind: ErrEmpty, Addr: inv.addr, Err: errors.New("no data received")}
		}
		kind := ErrUnexpected
		if isTimeout(err) {
			kind = ErrTimeout
		}
		return nil, &ConnectionError{Kind: kind, Addr: inv.addr, Err: err}
	}

	inv.log.Debug("received response",
		zap.String("addr", inv.addr),
		zap.Int("length", n))

	return buf[:n], nil
}

// deadline is now plus the configured timeout, capped by the context.
func (inv *Inverter) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(inv.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
