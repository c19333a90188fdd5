package internal

import (
	"log"
	"os"
	"strings"
)

// ErrorLogFilter drops "context canceled" lines from the http.Server error
// log. Clients abandoning a solve mid-request produce a lot of them.
type ErrorLogFilter struct {
	Unwrap *log.Logger
}

func (elf *ErrorLogFilter) Write(p []byte) (n int, err error) {
	if strings.Contains(string(p), "context canceled") {
		return len(p), nil
	}

	if elf.Unwrap != nil {
		return elf.Unwrap.Writer().Write(p)
	}

	return len(p), nil
}

func GetFilteredHTTPLogger() *log.Logger {
	stdErrLogger := log.New(os.Stderr, "", log.LstdFlags)
	return log.New(&ErrorLogFilter{Unwrap: stdErrLogger}, "", 0)
}
