package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/facefolio/internal/embedder"
	"github.com/andresmejia3/facefolio/internal/types"
	"github.com/andresmejia3/facefolio/internal/utils" // Using the SafeCommand wrapper
)

// Config describes how to launch python/worker.py.
type Config struct {
	Python      string
	Script      string
	Model       string // "hog" or "cnn", passed to face_recognition
	ReadTimeout time.Duration
}

type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration

	mu     sync.Mutex
	broken error
}

func NewPythonWorker(id int, cfg Config) (*PythonWorker, error) {
	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommand(cfg.Python, "-u", cfg.Script, "--model", cfg.Model)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		Timeout:  cfg.ReadTimeout,
	}, nil
}

// NewFactory starts one Python process per engine id.
func NewFactory(cfg Config) embedder.Factory {
	return func(ctx context.Context, id int) (embedder.Engine, error) {
		return NewPythonWorker(id, cfg)
	}
}

func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	// Read Result from the clean DataPipe
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessImage sends one encoded photo and decodes every face found in it.
func (w *PythonWorker) ProcessImage(imageData []byte) ([]types.FaceResult, error) {
	resp, err := w.Communicate(imageData)
	if err != nil {
		return nil, fmt.Errorf("worker %d pipe failure: %w", w.ID, err)
	}
	return parseResponse(resp)
}

// DetectFaces runs ProcessImage under the read timeout. A timeout or a cancelled
// context kills the process; the worker is unusable afterwards.
func (w *PythonWorker) DetectFaces(ctx context.Context, imageData []byte) ([]types.FaceResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return nil, w.broken
	}

	type reply struct {
		faces []types.FaceResult
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		faces, err := w.ProcessImage(imageData)
		done <- reply{faces, err}
	}()

	var timeout <-chan time.Time
	if w.Timeout > 0 {
		timer := time.NewTimer(w.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		if r.err != nil && !embedder.IsItemError(r.err) {
			w.broken = r.err
		}
		return r.faces, r.err
	case <-timeout:
		w.broken = fmt.Errorf("worker %d timed out after %s", w.ID, w.Timeout)
	case <-ctx.Done():
		w.broken = ctx.Err()
	}
	w.kill()
	return nil, w.broken
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
	w.DataPipe.Close()
}

// Command exposes the process so callers can dump its captured stderr.
func (w *PythonWorker) Command() *utils.SafeCommand {
	return w.Cmd
}

func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}

// parseResponse decodes:
//
//	[Status:0] [NumFaces:u32] { [Box:4xi32 top,right,bottom,left] [Dim:u32] [Vec:Dim x f64] }
//	[Status:1] [MsgLen:u32] [Msg]
func parseResponse(resp []byte) ([]types.FaceResult, error) {
	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty response from worker")
	}

	if status == 1 {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		return nil, &embedder.ItemError{Engine: "python worker", Msg: string(msg)}
	}
	if status != 0 {
		return nil, fmt.Errorf("unknown worker status byte %d", status)
	}

	var numFaces uint32
	if err := binary.Read(r, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("failed to read face count: %w", err)
	}

	// Smallest possible face record: box (16 bytes) and dimension (4 bytes).
	if uint64(numFaces)*20 > uint64(r.Len()) {
		return nil, fmt.Errorf("truncated response: %d faces announced, %d bytes left", numFaces, r.Len())
	}

	faces := make([]types.FaceResult, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: failed to read box: %w", i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("face %d: failed to read dimension: %w", i, err)
		}
		if uint64(dim)*8 > uint64(r.Len()) {
			return nil, fmt.Errorf("face %d: truncated embedding (dim %d)", i, dim)
		}
		vec := make([]float64, dim)
		if err := binary.Read(r, binary.BigEndian, vec); err != nil {
			return nil, fmt.Errorf("face %d: failed to read embedding: %w", i, err)
		}
		faces = append(faces, types.FaceResult{
			Loc: types.BoundingBox{
				Top:    int(box[0]),
				Right:  int(box[1]),
				Bottom: int(box[2]),
				Left:   int(box[3]),
			},
			Vec: types.Embedding(vec),
		})
	}
	return faces, nil
}
