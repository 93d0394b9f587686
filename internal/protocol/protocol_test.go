package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// TestEncode tests the Encode function with various inputs
func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		target  int64
		payload []byte
		wantErr error
	}{
		{name: "simple target with payload", target: 1, payload: []byte("hello")},
		{name: "empty payload", target: 0x100, payload: []byte{}},
		{name: "nil payload", target: 0x200, payload: nil},
		{name: "max target", target: 1<<63 - 1, payload: []byte("test")},
		{name: "binary payload", target: 0x42, payload: []byte{0x00, 0xFF, 0x01, 0xFE}},
		{name: "payload at max size", target: 1, payload: make([]byte, MaxPayloadSize)},
		{name: "payload exceeds max size", target: 1, payload: make([]byte, MaxPayloadSize+1), wantErr: ErrPayloadTooLarge},
		{name: "zero target", target: 0, payload: []byte("x"), wantErr: ErrInvalidTarget},
		{name: "negative target", target: -5, payload: []byte("x"), wantErr: ErrInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := Encode(tt.target, tt.payload)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Encode() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			if len(result) != HeaderSize+len(tt.payload) {
				t.Errorf("result length = %d, want %d", len(result), HeaderSize+len(tt.payload))
			}
			if got := int64(binary.BigEndian.Uint64(result[:HeaderSize])); got != tt.target {
				t.Errorf("encoded target = %d, want %d", got, tt.target)
			}
			if !bytes.Equal(result[HeaderSize:], tt.payload) {
				t.Errorf("encoded payload = %v, want %v", result[HeaderSize:], tt.payload)
			}
		})
	}
}

// TestDecode tests the Decode function with various inputs
func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		data        []byte
		wantTarget  int64
		wantPayload []byte
		wantErr     error
	}{
		{
			name:        "valid data with payload",
			data:        []byte{0, 0, 0, 0, 0, 0, 0, 0x07, 'h', 'i'},
			wantTarget:  7,
			wantPayload: []byte("hi"),
		},
		{
			name:        "exactly header size",
			data:        []byte{0, 0, 0, 0, 0, 0, 0x01, 0x00},
			wantTarget:  0x100,
			wantPayload: []byte{},
		},
		{name: "empty", data: []byte{}, wantErr: ErrShortEnvelope},
		{name: "7 bytes", data: []byte{0, 0, 0, 0, 0, 0, 1}, wantErr: ErrShortEnvelope},
		{name: "zero target", data: make([]byte, HeaderSize), wantErr: ErrInvalidTarget},
		{
			name:    "negative target",
			data:    []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			wantErr: ErrInvalidTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			target, payload, err := Decode(tt.data)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			if target != tt.wantTarget {
				t.Errorf("Decode() target = %d, want %d", target, tt.wantTarget)
			}
			if !bytes.Equal(payload, tt.wantPayload) {
				t.Errorf("Decode() payload = %v, want %v", payload, tt.wantPayload)
			}
		})
	}
}

// TestEncodeDecodeRoundTrip verifies that Encode and Decode are inverses
func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	payload := []byte("relayed")
	encoded, err := Encode(123456789, payload)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	target, decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if target != 123456789 || !bytes.Equal(decoded, payload) {
		t.Errorf("round trip = (%d, %q), want (123456789, %q)", target, decoded, payload)
	}
}

// TestEncodePreservesInput tests that Encode doesn't modify the input payload
func TestEncodePreservesInput(t *testing.T) {
	t.Parallel()

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	payloadCopy := append([]byte(nil), payload...)

	if _, err := Encode(0x42, payload); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if !bytes.Equal(payload, payloadCopy) {
		t.Errorf("Encode() modified input payload: got %v, want %v", payload, payloadCopy)
	}
}

// BenchmarkEncode benchmarks the encoding operation
func BenchmarkEncode(b *testing.B) {
	payload := []byte("benchmark test payload with some data")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Encode(0x42, payload)
	}
}

// BenchmarkDecode benchmarks the decoding operation
func BenchmarkDecode(b *testing.B) {
	data, _ := Encode(0x42, []byte("benchmark test payload with some data"))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = Decode(data)
	}
}
