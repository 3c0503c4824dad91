package adapter

import (
	"bytes"
	"testing"
)

func TestChunkRoundTrip(t *testing.T) {
	for _, mtu := range []int{1, 7, 20, 256, 4096} {
		frame := make([]byte, 513)
		for i := range frame {
			frame[i] = byte(i)
		}

		chunks := Chunk(mtu, frame)

		var reassembled []byte
		for _, c := range chunks {
			if len(c) > mtu {
				t.Fatalf("mtu %d: chunk of %d bytes exceeds mtu", mtu, len(c))
			}
			reassembled = append(reassembled, c...)
		}
		if !bytes.Equal(reassembled, frame) {
			t.Fatalf("mtu %d: reassembled frame does not match original", mtu)
		}
	}
}

func TestChunkEmpty(t *testing.T) {
	if chunks := Chunk(256, nil); chunks != nil {
		t.Fatalf("expected nil chunks for empty frame, got %v", chunks)
	}
}
