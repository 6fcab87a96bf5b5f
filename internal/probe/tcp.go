package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

type TCP struct {
	timeout time.Duration
	dialer  *net.Dialer
}

func NewTCP(timeout time.Duration) *TCP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TCP{timeout: timeout, dialer: &net.Dialer{}}
}

// SplitHostPort splits on the last colon: the final segment is the port and
// everything before it is the host. Bracketed IPv6 hosts are unwrapped.
func SplitHostPort(address string) (string, uint16, bool) {
	i := strings.LastIndex(address, ":")
	if i <= 0 || i == len(address)-1 {
		return "", 0, false
	}
	host := strings.TrimSpace(address[:i])
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return "", 0, false
	}
	port, err := strconv.ParseUint(strings.TrimSpace(address[i+1:]), 10, 16)
	if err != nil || port == 0 {
		return "", 0, false
	}
	return host, uint16(port), true
}

func (p *TCP) Probe(ctx context.Context, t target.Target) Outcome {
	host, port, ok := SplitHostPort(t.Address)
	if !ok {
		return offlinef("invalid address %q: expected host:port", t.Address)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	dctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		return p.failure(ctx, addr, err)
	}
	_ = conn.Close()
	return online("connected to " + addr)
}

func (p *TCP) failure(parent context.Context, addr string, err error) Outcome {
	if cancelled(parent) {
		return offline("check cancelled")
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return offlinef("connection refused by %s", addr)
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return offlinef("connection to %s timed out after %s", addr, p.timeout)
	}
	return offlinef("connection to %s failed: %v", addr, err)
}
