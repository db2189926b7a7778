package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrPeerUnsupported is returned where peer credentials cannot be read.
var ErrPeerUnsupported = errors.New("peer credentials not supported on this platform")

// PeerCredentials identifies the process on the other end of a socket.
type PeerCredentials struct {
	PID int
	UID int
}

// VerifyPeerIsCurrentUser reports whether the peer runs as the current user.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	cred, err := GetPeerCredentials(conn)
	if err != nil {
		return false, err
	}
	return cred.UID == os.Getuid(), nil
}

// CleanupSocket removes a stale socket file. Anything else at path is left
// alone and reported.
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}
	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening reports whether a daemon answers on path.
func IsSocketListening(path string) bool {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
