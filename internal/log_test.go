package internal

import (
	"bytes"
	"log"
	"testing"
)

func TestErrorLogFilter(t *testing.T) {
	for _, tt := range []struct {
		name    string
		message string
		written bool
	}{
		{"proxy-cancel", "http: proxy error: context canceled", false},
		{"other-error", "http: TLS handshake error from 10.0.0.1:5555: EOF", true},
		{"cancel-mid-line", "solve aborted: context canceled by client", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			lg := log.New(&ErrorLogFilter{Unwrap: log.New(&buf, "", 0)}, "", 0)
			lg.Println(tt.message)

			if got := buf.String(); tt.written && got != tt.message+"\n" {
				t.Errorf("wanted %q to be written, got %q", tt.message, got)
			} else if !tt.written && got != "" {
				t.Errorf("wanted %q to be dropped, got %q", tt.message, got)
			}
		})
	}
}
