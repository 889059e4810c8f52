package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// sessionIDKey is the context key under which the active session id is
// stashed so log lines can be correlated without threading it through
// every call signature.
type sessionIDKey struct{}

// WithSessionID returns a context carrying session for later log correlation.
func WithSessionID(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, session)
}

// CustomHandler implements slog.Handler, formatting records as
// "[time] [LEVEL] [session] message key=val ...".
type CustomHandler struct {
	w     io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	return &CustomHandler{w: w, opts: opts}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	session := ""
	if ctx != nil {
		if v := ctx.Value(sessionIDKey{}); v != nil {
			if s, ok := v.(string); ok {
				session = s
			}
		}
	}

	fmt.Fprintf(buf, "[%s] [%s]", r.Time.Format("2006-01-02 15:04:05"), r.Level)
	if session != "" {
		fmt.Fprintf(buf, " [%s]", session)
	}
	fmt.Fprintf(buf, " %s", r.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})

	buf.WriteString("\n")
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CustomHandler{w: h.w, opts: h.opts, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *CustomHandler) WithGroup(_ string) slog.Handler {
	return h
}

// SetupSlog installs the CustomHandler as the default slog logger.
func SetupSlog(levelStr string) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// PrintBanner prints the startup banner.
func PrintBanner() {
	fmt.Print(`
 _____ _____ _______     _______       _______ _    _
|  ___|  _  |   ____|\ |\ |  _  |\ |  |  _  | |  | |
| |__ | |_| |__   \  \| || |_| |\ \|  | |_| | |__| |
|  __|| __|  \   \    ||   __| |      |   __|  __  |
| |___| |\ \__/  /  /| ||\ \__/ | .   | |\ \__/  |  |
|_____|_| \_____/  /__/|_| \____|  \  |_| \_____/|__|
` + "\n")
}
