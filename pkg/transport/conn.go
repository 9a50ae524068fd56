package transport

import (
	"net"
	"time"
)

// Metadata describes an established connection.
type Metadata struct {
	LocalAddr      string    `json:"local_addr"`
	RemoteAddr     string    `json:"remote_addr"`
	Proxy          string    `json:"proxy,omitempty"`
	TLSVersion     string    `json:"tls_version,omitempty"`
	TLSCipherSuite string    `json:"tls_cipher_suite,omitempty"`
	TLSServerName  string    `json:"tls_server_name,omitempty"`
	ConnectedAt    time.Time `json:"connected_at"`
}

// Conn sets a fresh deadline before every Read and Write, so each operation
// is bounded on its own rather than the connection as a whole.
type Conn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	meta         Metadata
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}

// SetTimeouts changes the per-operation timeouts. Zero disables a deadline.
func (c *Conn) SetTimeouts(read, write time.Duration) {
	c.readTimeout = read
	c.writeTimeout = write
}

// Metadata returns details of the connection.
func (c *Conn) Metadata() Metadata {
	return c.meta
}
