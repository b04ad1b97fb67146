package relay

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wtask/relay/internal/logging"
)

// recorder - enqueuer which remembers every line.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Enqueue(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// pipeSession - session over net.Pipe, returns the client side of the pipe.
func pipeSession(t *testing.T, sink enqueuer, config sessionConfig) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	if sink == nil {
		sink = &recorder{}
	}
	return newSession(server, sink, config, logging.Discard()), client
}

// readPacket - reads lines until packet trailer.
func readPacket(r *bufio.Reader) ([]string, error) {
	lines := []string{}
	for {
		l, err := r.ReadString('\n')
		if err != nil {
			return lines, err
		}
		l = strings.TrimSuffix(l, "\n")
		lines = append(lines, l)
		if l == packetTrailer {
			return lines, nil
		}
	}
}

// packetReader - reads one packet from conn in background.
func packetReader(conn net.Conn) <-chan []string {
	out := make(chan []string, 1)
	go func() {
		lines, err := readPacket(bufio.NewReader(conn))
		if err == nil {
			out <- lines
		}
		close(out)
	}()
	return out
}

func waitPacket(t *testing.T, packets <-chan []string) []string {
	t.Helper()
	select {
	case lines, ok := <-packets:
		if !ok {
			t.Fatal("connection closed before packet")
		}
		return lines
	case <-time.After(2 * time.Second):
		t.Fatal("packet was not received")
	}
	return nil
}
