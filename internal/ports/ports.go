// Package ports allocates free host ports for workspace SSH mappings.
package ports

import (
	"net"

	"github.com/mufancom/remote-workspace/internal/errors"
)

// MaxAttempts bounds the retry loop against ports already claimed by live
// records.
const MaxAttempts = 16

// Allocate draws a free port from the kernel pool, retrying when the drawn
// port collides with the inUse set. It fails with PORT_EXHAUSTED after
// MaxAttempts collisions rather than looping forever.
func Allocate(inUse map[int]bool) (int, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		port, err := free()
		if err != nil {
			return 0, errors.Wrap(errors.ErrPortExhausted, "failed to probe for a free port", err)
		}
		if !inUse[port] {
			return port, nil
		}
	}
	return 0, errors.New(errors.ErrPortExhausted, "no free port found after %d attempts", MaxAttempts)
}

func free() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
