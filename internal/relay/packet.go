package relay

import (
	"strconv"
	"strings"
	"time"
)

const (
	packetHeader  = "=== Broadcast ==="
	packetTrailer = "================="
)

// Packet - messages drained on a single broadcast tick.
type Packet struct {
	Time     time.Time
	Messages []string
}

// Len - number of messages in packet.
func (p Packet) Len() int {
	return len(p.Messages)
}

// String - renders packet as multi-line text without trailing EOL:
// header, timestamp, message count, numbered messages and trailer.
func (p Packet) String() string {
	b := strings.Builder{}
	b.WriteString(packetHeader)
	b.WriteString("\nTime: ")
	b.WriteString(p.Time.Format(time.RFC3339))
	b.WriteString("\nMessages: ")
	b.WriteString(strconv.Itoa(len(p.Messages)))
	for i, m := range p.Messages {
		b.WriteByte('\n')
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(m)
	}
	b.WriteByte('\n')
	b.WriteString(packetTrailer)
	return b.String()
}

// formatMessage - queue entry of single client line.
func formatMessage(id, text string) string {
	return id + ": " + text
}
