package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// Exchange writes one request datagram and reads one reply into buf.
//
// The deadline is the earlier of ctx's deadline and now+timeout; a zero
// timeout leaves only ctx. There is no retry: a lost request or reply
// surfaces as os.ErrDeadlineExceeded.
func Exchange(ctx context.Context, conn net.Conn, request []byte, buf []byte, timeout time.Duration) (int, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}
	defer conn.SetDeadline(time.Time{})

	// Unblock the read early if ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(request); err != nil {
		return 0, err
	}
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, ctx.Err()
		}
		return 0, err
	}
	return n, nil
}
