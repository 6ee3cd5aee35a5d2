package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// progressReader wraps a reader, stops on context cancellation and reports
// cumulative bytes read.
type progressReader struct {
	ctx        context.Context
	r          io.Reader
	total      int64
	done       int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.done += int64(n)
		if pr.onProgress != nil {
			pr.onProgress(pr.done, pr.total)
		}
	}
	return n, err
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	if progress != nil {
		progress(0, total)
	}
	return io.Copy(dst, &progressReader{ctx: ctx, r: src, total: total, onProgress: progress})
}

// partPath names the scratch file a download is written to before it is
// renamed over localPath.
func partPath(localPath string) string {
	return localPath + ".part-" + uuid.NewString()
}

// writeLocal streams src into localPath through a scratch file. The target is
// only replaced once every byte has landed.
func writeLocal(ctx context.Context, localPath string, src io.Reader, total int64, progress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	tmp := partPath(localPath)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	_, copyErr := copyWithProgress(ctx, f, src, total, progress)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", localPath, copyErr)
	}
	if err := os.Rename(tmp, localPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// openLocal opens a file to upload and reports its size.
func openLocal(localPath string) (*os.File, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, 0, mapError("open", localPath, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, mapError("stat", localPath, err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("upload %s: is a directory", localPath)
	}
	return f, fi.Size(), nil
}
