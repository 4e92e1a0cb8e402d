package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/facefolio/internal/embedder"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// frame writes the length header and payload the way worker.py does on FD 3.
func frame(payload []byte) *MockCloser {
	m := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(m, binary.BigEndian, uint32(len(payload)))
	m.Write(payload)
	return m
}

func okPayload(boxes [][4]int32, vecs [][]float64) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)                                        // Status OK
	binary.Write(payload, binary.BigEndian, uint32(len(boxes))) // NumFaces
	for i := range boxes {
		binary.Write(payload, binary.BigEndian, boxes[i])
		binary.Write(payload, binary.BigEndian, uint32(len(vecs[i])))
		binary.Write(payload, binary.BigEndian, vecs[i])
	}
	return payload.Bytes()
}

func errPayload(msg string) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(1) // Status ERROR
	binary.Write(payload, binary.BigEndian, uint32(len(msg)))
	payload.WriteString(msg)
	return payload.Bytes()
}

func TestProcessImage(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := frame(okPayload(
		[][4]int32{{10, 40, 50, 5}, {100, 180, 170, 110}},
		[][]float64{{0.5, -0.25, 0.125}, {1, 2, 3}},
	))

	w := &PythonWorker{
		ID:       1,
		Stdin:    stdinMock,
		DataPipe: dataPipeMock,
		// Cmd is nil because we aren't testing process management, just the protocol
	}

	input := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	faces, err := w.ProcessImage(input)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}

	// Verify Go sent the correct data TO Python
	sent := stdinMock.Bytes()
	if len(sent) != 4+len(input) {
		t.Fatalf("Expected %d bytes sent, got %d", 4+len(input), len(sent))
	}
	if binary.BigEndian.Uint32(sent[:4]) != uint32(len(input)) || !bytes.Equal(sent[4:], input) {
		t.Errorf("unexpected request frame %x", sent)
	}

	if len(faces) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(faces))
	}
	if faces[0].Loc.Top != 10 || faces[0].Loc.Right != 40 || faces[0].Loc.Bottom != 50 || faces[0].Loc.Left != 5 {
		t.Errorf("unexpected box %+v", faces[0].Loc)
	}
	if len(faces[0].Vec) != 3 || math.Abs(faces[0].Vec[1]+0.25) > 1e-12 {
		t.Errorf("unexpected vector %v", faces[0].Vec)
	}
	if faces[1].Vec[2] != 3 {
		t.Errorf("second face vector = %v", faces[1].Vec)
	}
}

func TestProcessImage_NoFaces(t *testing.T) {
	w := &PythonWorker{
		ID:       1,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: frame(okPayload(nil, nil)),
	}
	faces, err := w.ProcessImage([]byte("img"))
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
}

func TestProcessImage_Error(t *testing.T) {
	errMsg := "cannot identify image file"
	w := &PythonWorker{
		ID:       1,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: frame(errPayload(errMsg)),
	}

	_, err := w.ProcessImage([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
	if !embedder.IsItemError(err) {
		t.Error("worker-reported failure should only affect the current image")
	}
}

func TestProcessImage_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"Empty", []byte{}},
		{"Unknown status", []byte{7}},
		{"Truncated vector", okPayload([][4]int32{{1, 2, 3, 4}}, [][]float64{{1, 2}})[:30]},
		{"Absurd face count", []byte{0, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"Face count beyond payload", okPayload([][4]int32{{1, 2, 3, 4}}, [][]float64{{1}})[:1+4+19]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &PythonWorker{
				ID:       1,
				Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
				DataPipe: frame(tt.payload),
			}
			_, err := w.ProcessImage([]byte("x"))
			if err == nil {
				t.Fatal("expected error")
			}
			if embedder.IsItemError(err) {
				t.Errorf("protocol corruption must not be an item error: %v", err)
			}
		})
	}
}

func TestProcessImage_PipeClosed(t *testing.T) {
	// Python died before answering (e.g. ModuleNotFoundError)
	w := &PythonWorker{
		ID:       3,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)},
	}
	_, err := w.ProcessImage([]byte("x"))
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestDetectFaces_Timeout(t *testing.T) {
	pr, _ := io.Pipe() // never written: the read blocks until closed
	w := &PythonWorker{
		ID:       2,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: pr,
		Timeout:  50 * time.Millisecond,
	}

	_, err := w.DetectFaces(context.Background(), []byte("slow"))
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if embedder.IsItemError(err) {
		t.Error("timeout must be fatal")
	}

	// The worker stays broken.
	if _, err2 := w.DetectFaces(context.Background(), []byte("next")); err2 == nil {
		t.Error("expected broken worker to refuse further work")
	}
}

func TestDetectFaces_ItemErrorKeepsWorker(t *testing.T) {
	data := new(bytes.Buffer)
	data.Write(frame(errPayload("bad")).Bytes())
	data.Write(frame(okPayload([][4]int32{{0, 1, 1, 0}}, [][]float64{{0}})).Bytes())

	w := &PythonWorker{
		ID:       1,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: data},
		Timeout:  time.Second,
	}

	if _, err := w.DetectFaces(context.Background(), []byte("a")); !embedder.IsItemError(err) {
		t.Fatalf("expected item error, got %v", err)
	}
	faces, err := w.DetectFaces(context.Background(), []byte("b"))
	if err != nil || len(faces) != 1 {
		t.Fatalf("expected 1 face after item error, got %d (%v)", len(faces), err)
	}
}
