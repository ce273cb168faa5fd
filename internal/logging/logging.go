package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes leveled logs to stdout and a rotated file.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
	mask bool
}

// New creates a Logger writing to dir/notification-service.log and stdout.
func New(dir, level string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "notification-service.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	// Output to both file and console
	l.SetOutput(io.MultiWriter(file, os.Stdout))

	return &Logger{Logger: l, file: file}, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// SetMasking turns contact masking in Contact on or off.
func (l *Logger) SetMasking(on bool) {
	l.mask = on
}

// Contact renders a recipient for logging, masked when masking is on.
func (l *Logger) Contact(c string) string {
	if !l.mask {
		return c
	}
	return Mask(c)
}

// Contacts renders a recipient list for logging.
func (l *Logger) Contacts(cs []string) string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = l.Contact(c)
	}
	return strings.Join(out, ",")
}

// Mask hides the middle of a contact: emails keep the first letter of the
// local part and the domain, phones keep the last four digits.
func Mask(c string) string {
	if at := strings.LastIndex(c, "@"); at > 0 {
		return c[:1] + strings.Repeat("*", at-1) + c[at:]
	}
	r := []rune(c)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

func (l *Logger) Close() {
	if l.file == nil {
		return
	}
	_ = l.file.Close()
}
