package metrics

import "net"

// newListener opens a TCP listener on addr for the HTTP mirror.
func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
