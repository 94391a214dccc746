package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// LocalTransport runs commands with /bin/sh on this machine.
type LocalTransport struct {
	Shell string
}

// NewLocal creates a LocalTransport.
func NewLocal() *LocalTransport {
	return &LocalTransport{Shell: "/bin/sh"}
}

func (t *LocalTransport) Open(ctx context.Context) error {
	if _, err := exec.LookPath(t.Shell); err != nil {
		return fmt.Errorf("shell %s not found: %w", t.Shell, err)
	}
	return ctx.Err()
}

func (t *LocalTransport) Close() error { return nil }

func (t *LocalTransport) Local() bool { return true }

func (t *LocalTransport) Exec(ctx context.Context, command string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

func (t *LocalTransport) MkdirAll(_ context.Context, dir string) error {
	return os.MkdirAll(dir, 0o775)
}

func (t *LocalTransport) Upload(_ context.Context, localPath, remotePath string) error {
	return copyFile(localPath, remotePath)
}

func (t *LocalTransport) Download(_ context.Context, remotePath, localPath string) error {
	return copyFile(remotePath, localPath)
}

func copyFile(src, dst string) error {
	absSrc, _ := filepath.Abs(src)
	absDst, _ := filepath.Abs(dst)
	if absSrc == absDst {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o775); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o664)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var _ Transport = (*LocalTransport)(nil)
