package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps Python logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 FACEFOLIO ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nPYTHON CRASH LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for commands that cannot return an error.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Photo Files ---

// ImageExtensions lists the photo formats accepted as input (compared lower-case).
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"}

// IsImageFile checks the extension only; content is validated by the engine.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ListImages walks dir recursively and returns image paths in lexical walk order.
// This order is the canonical processing order for first-match decisions.
func ListImages(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsImageFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// NameFromPath returns the file name without extension ("refs/Alice.jpg" -> "Alice").
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var (
	// ErrDestinationExists is returned by CopyFile when an identical copy is already present.
	ErrDestinationExists = errors.New("destination already exists")
	// ErrSourceUnreadable wraps failures to open or stat the file being copied.
	ErrSourceUnreadable = errors.New("source unreadable")
)

// CopyFile copies src into dir, keeping the modification time, and returns the
// destination path. The copy keeps the base name of src unless a different file
// already holds it, in which case "name (1).ext", "name (2).ext", ... are tried.
// When one of those names already holds the same content, nothing is written
// and ErrDestinationExists is returned with that path.
func CopyFile(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		dst := filepath.Join(dir, name)

		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			same, err := sameContent(src, dst, info.Size())
			if err != nil {
				return "", err
			}
			if same {
				return dst, ErrDestinationExists
			}
			continue
		}
		if err != nil {
			return "", err
		}

		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			os.Remove(dst)
			return "", err
		}
		if err := out.Close(); err != nil {
			os.Remove(dst)
			return "", err
		}
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
		return dst, nil
	}
}

// sameContent reports whether the file at b has size bytes identical to a.
func sameContent(a, b string, size int64) (bool, error) {
	info, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() || info.Size() != size {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, 32*1024)
	bufB := make([]byte, 32*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA == io.EOF || errA == io.ErrUnexpectedEOF {
			return errB == io.EOF || errB == io.ErrUnexpectedEOF, nil
		}
		if errA != nil {
			return false, fmt.Errorf("%w: %w", ErrSourceUnreadable, errA)
		}
		if errB != nil {
			return false, errB
		}
	}
}
