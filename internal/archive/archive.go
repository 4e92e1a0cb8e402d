// Package archive reads photo sets from zip files and packages sorted output.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/andresmejia3/facefolio/internal/utils"
)

// Extracted lists the images written by ExtractImages.
type Extracted struct {
	Paths      []string // in archive order
	Duplicates []string // entries dropped because their base name was already taken
}

// ExtractImages copies every image entry of zipPath into destDir, flattened to
// its base name. Non-image entries are ignored. When two entries share a base
// name the first one is kept.
func ExtractImages(zipPath, destDir string) (*Extracted, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("%s is not a readable zip archive: %w", zipPath, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}

	out := &Extracted{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !utils.IsImageFile(f.Name) {
			continue
		}
		// Zip names always use forward slashes.
		name := path.Base(f.Name)
		dst := filepath.Join(destDir, name)

		written, err := extractFile(f, dst)
		if err != nil {
			return out, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		if !written {
			out.Duplicates = append(out.Duplicates, f.Name)
			continue
		}
		out.Paths = append(out.Paths, dst)
	}
	return out, nil
}

func extractFile(f *zip.File, dst string) (bool, error) {
	rc, err := f.Open()
	if err != nil {
		return false, err
	}
	defer rc.Close()

	w, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := io.Copy(w, rc); err != nil {
		w.Close()
		return false, err
	}
	return true, w.Close()
}

// CreateZip packages the contents of dir into zipPath. Entry names are
// relative to dir, so the archive unpacks to the folder layout of dir.
func CreateZip(dir, zipPath string) (int, error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return 0, err
	}

	absZip, _ := filepath.Abs(zipPath)
	zw := zip.NewWriter(out)
	count := 0
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Writing the archive inside dir must not include itself.
		if abs, _ := filepath.Abs(p); abs == absZip {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if err := addFile(zw, p, filepath.ToSlash(rel)); err != nil {
			return err
		}
		count++
		return nil
	})

	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := out.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		os.Remove(zipPath)
		return 0, walkErr
	}
	return count, nil
}

func addFile(zw *zip.Writer, src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
