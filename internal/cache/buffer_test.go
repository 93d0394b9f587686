package cache

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"
)

func TestBufferReadFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		capacity int
		input    int
		wantLen  int
		wantErr  error
	}{
		{name: "empty message", capacity: 16, input: 0, wantLen: 0},
		{name: "smaller than capacity", capacity: 16, input: 5, wantLen: 5},
		{name: "exactly capacity", capacity: 16, input: 16, wantLen: 16},
		{name: "one byte over", capacity: 16, input: 17, wantLen: 16, wantErr: ErrBufferFull},
		{name: "far over", capacity: 16, input: 4096, wantLen: 16, wantErr: ErrBufferFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := bytes.Repeat([]byte{0xAB}, tt.input)
			b := NewBuffer(tt.capacity)
			_, err := b.ReadFrom(bytes.NewReader(data))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadFrom() error = %v, want %v", err, tt.wantErr)
			}
			if b.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", b.Len(), tt.wantLen)
			}
			if !bytes.Equal(b.Bytes(), data[:tt.wantLen]) {
				t.Error("buffered bytes differ from input prefix")
			}
		})
	}
}

func TestBufferReadFromSmallReads(t *testing.T) {
	t.Parallel()

	data := []byte("hello, fragmented world")
	b := NewBuffer(64)
	n, err := b.ReadFrom(iotest.OneByteReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("ReadFrom() n = %d, want %d", n, len(data))
	}
	if !bytes.Equal(b.Bytes(), data) {
		t.Errorf("Bytes() = %q, want %q", b.Bytes(), data)
	}
}

func TestBufferReadFromError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	b := NewBuffer(64)
	_, err := b.ReadFrom(iotest.ErrReader(boom))
	if !errors.Is(err, boom) {
		t.Fatalf("ReadFrom() error = %v, want %v", err, boom)
	}
}

func TestBufferReuse(t *testing.T) {
	t.Parallel()

	b := NewBuffer(8)
	if _, err := b.Write([]byte("12345678")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", b.Len())
	}
	if _, err := b.ReadFrom(bytes.NewReader([]byte("abc"))); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if string(b.Bytes()) != "abc" {
		t.Errorf("Bytes() = %q, want %q", b.Bytes(), "abc")
	}
}

func TestBufferWriteOverflow(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4)
	n, err := b.Write([]byte("abcdef"))
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Write() error = %v, want ErrBufferFull", err)
	}
	if n != 4 || string(b.Bytes()) != "abcd" {
		t.Errorf("Write() kept %q (n=%d), want %q", b.Bytes(), n, "abcd")
	}
}
