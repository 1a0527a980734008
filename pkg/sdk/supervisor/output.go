package supervisor

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// maxLineBytes caps a buffered partial line; longer runs are logged in pieces.
const maxLineBytes = 1 << 20

// lineLogger is an io.Writer that logs each complete line of a child stream.
// It is handed to exec.Cmd directly, so exec owns the copying goroutine and
// cmd.Wait bounds it by WaitDelay even when a grandchild keeps the pipe open.
type lineLogger struct {
	logger *slog.Logger
	level  slog.Level
	stream string
	pid    int

	mu  sync.Mutex
	buf []byte
}

func newLineLogger(logger *slog.Logger, level slog.Level, stream string) *lineLogger {
	return &lineLogger{logger: logger, level: level, stream: stream}
}

func (l *lineLogger) setPID(pid int) {
	l.mu.Lock()
	l.pid = pid
	l.mu.Unlock()
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	if len(l.buf) >= maxLineBytes {
		l.emit(l.buf)
		l.buf = nil
	}
	// Reclaim the consumed prefix.
	if len(l.buf) == 0 {
		l.buf = l.buf[:0:0]
	}
	return len(p), nil
}

// Flush logs a trailing line that had no newline.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	l.logger.Log(context.Background(), l.level, string(line), "stream", l.stream, "pid", l.pid)
}
