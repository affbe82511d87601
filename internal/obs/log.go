package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// The membership API logs one JSON object per line to stdout; the audit
// recorder and lifecycle jobs share the same writer so their mirrors
// interleave cleanly with request logs.

var (
	lineOnce   sync.Once
	lineLogger *log.Logger
)

// Logger returns the shared line-oriented logger. Callers pass fully formed
// JSON; the logger adds nothing but the newline.
func Logger() *log.Logger {
	lineOnce.Do(func() {
		lineLogger = log.New(os.Stdout, "", 0)
	})
	return lineLogger
}

// LogRequest marshals the given fields as one JSON log line. A value that
// cannot marshal is reported rather than silently dropped.
func LogRequest(fields map[string]any) {
	data, err := json.Marshal(fields)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"request log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
