package framing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func frame(body ...byte) []byte {
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(buf)))
	copy(buf[4:], body)
	return buf
}

func TestReadFrameWholePDU(t *testing.T) {
	body := make([]byte, 12)
	want := frame(body...)

	r := NewReader(bytes.NewReader(want))
	got, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame returned error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadFrame = %x, want %x", got, want)
	}
}

func TestReadFrameTooSmall(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 8)

	r := NewReader(bytes.NewReader(lenBuf[:]))
	_, err := r.ReadFrame()
	if !errors.Is(err, ErrFrameTooSmall) {
		t.Errorf("expected ErrFrameTooSmall, got %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], MaxFrameLen+1)

	r := NewReader(bytes.NewReader(lenBuf[:]))
	_, err := r.ReadFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	want := frame(make([]byte, 12)...)
	r := NewReader(bytes.NewReader(want[:6]))
	_, err := r.ReadFrame()
	if !errors.Is(err, io.ErrUnexpectedEOF) && err != io.EOF {
		t.Errorf("expected an EOF-family error for a truncated body, got %v", err)
	}
}

func TestReadFrameSequential(t *testing.T) {
	first := frame(1, 2, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	second := frame(4, 5, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	stream := append(append([]byte{}, first...), second...)

	r := NewReader(bytes.NewReader(stream))
	got1, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("first ReadFrame error: %v", err)
	}
	if !bytes.Equal(got1, first) {
		t.Errorf("first frame = %x, want %x", got1, first)
	}
	got2, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("second ReadFrame error: %v", err)
	}
	if !bytes.Equal(got2, second) {
		t.Errorf("second frame = %x, want %x", got2, second)
	}
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	want := frame(9, 9, 9)
	if err := w.WriteFrame(want); err != nil {
		t.Fatalf("WriteFrame returned error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("written = %x, want %x", buf.Bytes(), want)
	}
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return len(p) - 1, nil
}

func TestWriteFrameShortWrite(t *testing.T) {
	w := NewWriter(shortWriter{})
	err := w.WriteFrame(frame(1, 2))
	if !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("expected io.ErrShortWrite, got %v", err)
	}
}
