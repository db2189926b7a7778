//go:build !linux && !darwin

package ipc

import "net"

// GetPeerCredentials is unsupported here; the socket's file mode is the
// only access control.
func GetPeerCredentials(net.Conn) (*PeerCredentials, error) {
	return nil, ErrPeerUnsupported
}
