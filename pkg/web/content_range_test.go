package web

import (
	"testing"

	"github.com/terrycain/s3-read-proxy/pkg/s"
)

func TestFormatContentRange(t *testing.T) {
	tables := []struct {
		name string
		in   s.ResolvedRange
		want string
	}{
		{"full range", s.ResolvedRange{Start: 0, End: 29, Total: 30}, "bytes 0-29/30"},
		{"suffix range", s.ResolvedRange{Start: 10, End: 29, Total: 30}, "bytes 10-29/30"},
		{"single byte", s.ResolvedRange{Start: 0, End: 0, Total: 1}, "bytes 0-0/1"},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			got := FormatContentRange(table.in)
			if got != table.want {
				t.Errorf("FormatContentRange() = %q, want %q", got, table.want)
			}
		})
	}
}
