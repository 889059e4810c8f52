package monitor

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Message is a standardized packet for operator-facing observability,
// consumed by Monitor.OnMessage. No component of this module calls
// OnMessage.
type Message struct {
	Timestamp time.Time
	Kind      string // "USER" or "ASSISTANT"
	ChannelID string
	Username  string
	Content   string
}

// Monitor defines the lifecycle and message-consumption protocol for
// observability plugins.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg Message)
}

// SetupEnvironment initializes the global logger at the given level,
// prints the startup banner, and returns a default CLI monitor.
func SetupEnvironment(logLevel string) Monitor {
	PrintBanner()
	SetupSlog(logLevel)
	return NewCLIMonitor()
}

// CLIMonitor renders the message stream directly to the terminal.
type CLIMonitor struct {
	writer io.Writer
}

func NewCLIMonitor() *CLIMonitor {
	return &CLIMonitor{writer: os.Stdout}
}

func (m *CLIMonitor) Start() error {
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "Monitor active - session traffic will appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

func (m *CLIMonitor) Stop() error { return nil }

func (m *CLIMonitor) OnMessage(msg Message) {
	ts := msg.Timestamp.Format("2006-01-02 15:04:05")
	var line string
	if msg.Kind == "ASSISTANT" {
		line = fmt.Sprintf("[AI] %s", msg.Content)
	} else {
		line = fmt.Sprintf("[%s/%s] %s", msg.ChannelID, msg.Username, msg.Content)
	}
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", ts, line)
}
