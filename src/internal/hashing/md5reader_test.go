package hashing

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type errorReader struct {
	err error
}

func (e *errorReader) Read(p []byte) (int, error) {
	return 0, e.err
}

func TestChecksumReader_PassesDataThrough(t *testing.T) {
	r := NewMD5Reader(strings.NewReader("example.com\nads\n"))

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "example.com\nads\n" {
		t.Errorf("data = %q", data)
	}
	if r.Size() != int64(len(data)) {
		t.Errorf("Size() = %d, want %d", r.Size(), len(data))
	}
}

func TestChecksumOf(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "d41d8cd98f00b204e9800998ecf8427e"},
		{"hello world", "hello world", "5eb63bbbe01eeed093cb22bb8f5acdc3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChecksumOf(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ChecksumOf() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ChecksumOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChecksumOf_ReadError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := ChecksumOf(&errorReader{err: boom}); !errors.Is(err, boom) {
		t.Errorf("ChecksumOf() error = %v, want boom", err)
	}
}
