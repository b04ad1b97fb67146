package relay

import "net"

// sessionID - builds display identity "<address>:<port>" of the connection peer.
func sessionID(c net.Conn) string {
	if c == nil {
		return ""
	}
	addr := c.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		// pipes and other non-IP transports
		return addr.String()
	}
	return host + ":" + port
}
