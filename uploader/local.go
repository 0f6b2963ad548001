package uploader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// Local places files into a directory that is served at BaseURL. The source
// file is left in place so later uploaders can still read it.
type Local struct {
	Path    string
	BaseURL string
}

func NewLocal(path string, baseURL string) Uploader {
	return &Local{
		Path:    path,
		BaseURL: baseURL,
	}
}

func (l *Local) Upload(ctx context.Context, item *Item) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	basename := filepath.Base(item.FilePath)

	// Create the destination directory if it doesn't exist
	if err := os.MkdirAll(l.Path, 0o755); err != nil {
		return nil, err
	}

	dest := filepath.Join(l.Path, basename)
	os.Remove(dest)
	if err := os.Link(item.FilePath, dest); err != nil {
		// Hard links fail across filesystems.
		if err := copyFile(item.FilePath, dest); err != nil {
			return nil, fmt.Errorf("copy %s: %w", basename, err)
		}
	}

	publicURL, err := url.JoinPath(l.BaseURL, basename)
	if err != nil {
		publicURL = l.BaseURL + "/" + basename
	}
	return newResult(item, publicURL), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
