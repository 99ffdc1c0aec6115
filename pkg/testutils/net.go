package testutils

import (
	"net"
	"testing"
)

// RandomUDPPort grabs a free UDP port on the loopback interface and releases
// it so the caller can bind a transport to it.
func RandomUDPPort(t *testing.T) uint16 {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen UDP with random port: %+v", err)
	}
	defer conn.Close()
	return uint16(conn.LocalAddr().(*net.UDPAddr).Port)
}
