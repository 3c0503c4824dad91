package msg

import "testing"

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	m := &Message{
		DeviceID: 0x0102030405060708,
		Kind:     KindData,
		SeqNo:    42,
		Payload:  []byte("hello world"),
	}
	for i := range m.AuthTag {
		m.AuthTag[i] = byte(i)
	}

	frame, err := EncodeFrame(m)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if len(frame) != frameHeaderSize+len(m.Payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), frameHeaderSize+len(m.Payload))
	}

	decoded, err := DecodeFrame(frame, 2048)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if decoded.DeviceID != m.DeviceID || decoded.Kind != m.Kind || decoded.SeqNo != m.SeqNo {
		t.Fatalf("decoded header mismatch: %+v", decoded)
	}
	if string(decoded.Payload) != string(m.Payload) {
		t.Fatalf("decoded payload = %q, want %q", decoded.Payload, m.Payload)
	}
	if decoded.AuthTag != m.AuthTag {
		t.Fatalf("decoded auth tag mismatch")
	}
}

func TestDecodeFrameInvalidKind(t *testing.T) {
	frame := make([]byte, frameHeaderSize)
	frame[0] = byte(kindCount) // outside the closed set
	_, err := DecodeFrame(frame, 2048)
	if !isErrKind(err, ErrInvalidKind) {
		t.Fatalf("got %v, want ErrInvalidKind", err)
	}
}

func TestDecodeFrameInvalidLength(t *testing.T) {
	frame := make([]byte, frameHeaderSize)
	frame[0] = byte(KindData)
	putUint16BE(frame[1:3], 0xFFFF)
	_, err := DecodeFrame(frame, 2048)
	if !isErrKind(err, ErrInvalidLength) {
		t.Fatalf("got %v, want ErrInvalidLength", err)
	}
}

func TestDecodeFrameTruncated(t *testing.T) {
	frame := make([]byte, frameHeaderSize-1)
	_, err := DecodeFrame(frame, 2048)
	if !isErrKind(err, ErrTruncated) {
		t.Fatalf("got %v, want ErrTruncated", err)
	}

	full := make([]byte, frameHeaderSize+10)
	full[0] = byte(KindData)
	putUint16BE(full[1:3], 10)
	short := full[:frameHeaderSize+5]
	_, err = DecodeFrame(short, 2048)
	if !isErrKind(err, ErrTruncated) {
		t.Fatalf("short body: got %v, want ErrTruncated", err)
	}
}

func TestAssemblerFeedSplitAcrossChunks(t *testing.T) {
	m := &Message{Kind: KindPing, SeqNo: 1, DeviceID: 7}
	frame, err := EncodeFrame(m)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	a := NewAssembler(2048)
	mid := len(frame) / 2
	frames, err := a.Feed(frame[:mid])
	if err != nil {
		t.Fatalf("Feed first half: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no complete frames yet, got %d", len(frames))
	}

	frames, err = a.Feed(frame[mid:])
	if err != nil {
		t.Fatalf("Feed second half: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected exactly one complete frame, got %d", len(frames))
	}
	if string(frames[0]) != string(frame) {
		t.Fatalf("reassembled frame mismatch")
	}
}

func TestAssemblerFeedMultipleFramesInOneChunk(t *testing.T) {
	f1, _ := EncodeFrame(&Message{Kind: KindPing, SeqNo: 1, DeviceID: 1})
	f2, _ := EncodeFrame(&Message{Kind: KindReset, SeqNo: 2, DeviceID: 1})

	a := NewAssembler(2048)
	frames, err := a.Feed(append(append([]byte(nil), f1...), f2...))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
}

func TestAssemblerResetOnInvalidKind(t *testing.T) {
	a := NewAssembler(2048)
	bad := make([]byte, frameHeaderSize)
	bad[0] = byte(kindCount)
	_, err := a.Feed(bad)
	if !isErrKind(err, ErrInvalidKind) {
		t.Fatalf("got %v, want ErrInvalidKind", err)
	}
	if a.state != awaitingHeader || len(a.buf) != 0 {
		t.Fatalf("assembler did not reset after invalid kind")
	}
}

func isErrKind(err error, kind ErrorKind) bool {
	ce, ok := err.(*CoreError)
	return ok && ce.Kind == kind
}
