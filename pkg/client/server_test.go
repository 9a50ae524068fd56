package client

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// received is one request as seen by the scripted server.
type received struct {
	conn   int
	line   string
	header http.Header
	raw    string
	body   string
}

// reply writes a response for req on w. Returning false closes the
// connection.
type reply func(n int, req received, w net.Conn) bool

// scriptServer is a raw HTTP/1.1 server driven by a reply function.
type scriptServer struct {
	t     *testing.T
	ln    net.Listener
	reply reply

	conns int32
	mu    sync.Mutex
	reqs  []received
}

func newScriptServer(t *testing.T, r reply) *scriptServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &scriptServer{t: t, ln: ln, reply: r}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *scriptServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		id := int(atomic.AddInt32(&s.conns, 1))
		go s.handle(id, conn)
	}
}

func (s *scriptServer) handle(id int, conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		req, err := readRequest(br)
		if err != nil {
			return
		}
		req.conn = id

		s.mu.Lock()
		s.reqs = append(s.reqs, req)
		n := len(s.reqs)
		s.mu.Unlock()

		if !s.reply(n, req, conn) {
			return
		}
	}
}

func readRequest(br *bufio.Reader) (received, error) {
	var req received
	var raw strings.Builder
	line, err := br.ReadString('\n')
	if err != nil {
		return req, err
	}
	raw.WriteString(line)
	req.line = strings.TrimRight(line, "\r\n")
	req.header = http.Header{}
	for {
		l, err := br.ReadString('\n')
		if err != nil {
			return req, err
		}
		raw.WriteString(l)
		l = strings.TrimRight(l, "\r\n")
		if l == "" {
			break
		}
		k, v, _ := strings.Cut(l, ":")
		req.header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	req.raw = raw.String()

	switch {
	case strings.EqualFold(req.header.Get("Transfer-Encoding"), "chunked"):
		var body strings.Builder
		for {
			sizeLine, err := br.ReadString('\n')
			if err != nil {
				return req, err
			}
			size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
			if err != nil {
				return req, err
			}
			if size == 0 {
				br.ReadString('\n')
				break
			}
			buf := make([]byte, size+2)
			if _, err := io.ReadFull(br, buf); err != nil {
				return req, err
			}
			body.Write(buf[:size])
		}
		req.body = body.String()
	case req.header.Get("Content-Length") != "":
		n, _ := strconv.Atoi(req.header.Get("Content-Length"))
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return req, err
		}
		req.body = string(buf)
	}
	return req, nil
}

func (s *scriptServer) url(path string) string {
	return "http://" + s.ln.Addr().String() + path
}

func (s *scriptServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *scriptServer) requests() []received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]received(nil), s.reqs...)
}

func (s *scriptServer) connCount() int {
	return int(atomic.LoadInt32(&s.conns))
}

// fixed replies with the same raw response to every request.
func fixed(resp string) reply {
	return func(_ int, _ received, w net.Conn) bool {
		w.Write([]byte(resp))
		return true
	}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Transport.ConnTimeout = 2 * time.Second
	s.Transport.ReadTimeout = 2 * time.Second
	s.Transport.WriteTimeout = 2 * time.Second
	s.WaitTimeout = 2 * time.Second
	return s
}
