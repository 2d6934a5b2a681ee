package logger

import (
	"fmt"
	"strings"
)

// ComponentLogger tags every message with a component name and renders
// trailing key/value pairs as key=value.
type ComponentLogger struct {
	component string
}

// WithComponent returns a logger scoped to a component
func WithComponent(component string) *ComponentLogger {
	return &ComponentLogger{component: component}
}

func (c *ComponentLogger) format(msg string, kv []any) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(c.component)
	b.WriteString("] ")
	b.WriteString(msg)

	for i := 0; i < len(kv); i += 2 {
		b.WriteString(" ")
		if i+1 >= len(kv) {
			fmt.Fprintf(&b, "%v=<missing>", kv[i])
			break
		}
		fmt.Fprintf(&b, "%v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

func (c *ComponentLogger) Debug(msg string, kv ...any) {
	Logf(LevelDebug, "%s", c.format(msg, kv))
}

func (c *ComponentLogger) Info(msg string, kv ...any) {
	Logf(LevelInfo, "%s", c.format(msg, kv))
}

func (c *ComponentLogger) Warn(msg string, kv ...any) {
	Logf(LevelWarn, "%s", c.format(msg, kv))
}

func (c *ComponentLogger) Error(msg string, kv ...any) {
	Logf(LevelError, "%s", c.format(msg, kv))
}
