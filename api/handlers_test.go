package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/hazyhaar/glotfile/format"
)

func TestReadField(t *testing.T) {
	broken := errors.New("connection reset")
	tests := []struct {
		name     string
		r        io.Reader
		want     string
		tooLarge bool
		invalid  bool
		msg      string
	}{
		{"value", strings.NewReader("  pdf-zip \n"), "pdf-zip", false, false, ""},
		{"field over limit", strings.NewReader(strings.Repeat("a", maxFieldBytes+1)), "", false, true, "form field too long"},
		{"body over limit", io.MultiReader(strings.NewReader("pdf"), iotest.ErrReader(&http.MaxBytesError{Limit: 64})), "", true, false, "exceeds 64 bytes"},
		{"read failure", io.MultiReader(strings.NewReader("pdf"), iotest.ErrReader(broken)), "", false, true, "connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readField(tt.r)
			if tt.msg == "" {
				if err != nil || got != tt.want {
					t.Fatalf("got %q, %v", got, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("error %v, want %q", err, tt.msg)
			}
			var tl *errTooLarge
			if errors.As(err, &tl) != tt.tooLarge {
				t.Fatalf("too large: %v", err)
			}
			if errors.Is(err, format.ErrInvalidInput) != tt.invalid {
				t.Fatalf("invalid input: %v", err)
			}
			if tt.name == "read failure" && strings.Contains(err.Error(), "too long") {
				t.Fatalf("read failure reported as length: %v", err)
			}
		})
	}
}
