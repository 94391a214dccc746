package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tigerroll/waves/pkg/waves/core/job/command"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// Auth provides the SSH authentication methods.
type Auth interface {
	Methods() ([]ssh.AuthMethod, error)
}

// PasswordAuth authenticates with a password.
type PasswordAuth struct {
	Password string
}

func (a PasswordAuth) Methods() ([]ssh.AuthMethod, error) {
	return []ssh.AuthMethod{ssh.Password(a.Password)}, nil
}

// KeyAuth authenticates with a private key file, optionally encrypted.
type KeyAuth struct {
	KeyFile    string
	Passphrase string
}

func (a KeyAuth) Methods() ([]ssh.AuthMethod, error) {
	pem, err := os.ReadFile(a.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", a.KeyFile, err)
	}
	var signer ssh.Signer
	if a.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(a.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", a.KeyFile, err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

// SSHTransport runs commands over one SSH client connection. Every command
// uses its own session; files are streamed through "cat".
type SSHTransport struct {
	conn    Connection
	auth    Auth
	timeout time.Duration

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSH creates an SSHTransport. Nothing is dialled before Open.
func NewSSH(c Connection, auth Auth) *SSHTransport {
	return &SSHTransport{conn: c, auth: auth, timeout: 15 * time.Second}
}

func (t *SSHTransport) Local() bool { return false }

func (t *SSHTransport) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if t.conn.KnownHosts == "" {
		logger.Warnf("No known_hosts file configured for %s, host key is not verified", t.conn.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(t.conn.KnownHosts)
}

func (t *SSHTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return nil
	}
	methods, err := t.auth.Methods()
	if err != nil {
		return err
	}
	hostKey, err := t.hostKeyCallback()
	if err != nil {
		return err
	}
	cfg := &ssh.ClientConfig{
		User:            t.conn.User,
		Auth:            methods,
		HostKeyCallback: hostKey,
		Timeout:         t.timeout,
	}
	addr := net.JoinHostPort(t.conn.Host, strconv.Itoa(t.conn.Port))

	d := net.Dialer{Timeout: t.timeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		raw.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	t.client = ssh.NewClient(c, chans, reqs)
	return nil
}

func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func (t *SSHTransport) session() (*ssh.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil, errors.New("ssh transport is not connected")
	}
	return t.client.NewSession()
}

// run executes cmd in a new session, closing the session when ctx is done.
func (t *SSHTransport) run(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	s, err := t.session()
	if err != nil {
		return 0, err
	}
	defer s.Close()
	s.Stdin = stdin
	s.Stdout = stdout
	s.Stderr = stderr

	done := make(chan error, 1)
	go func() { done <- s.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = s.Signal(ssh.SIGKILL)
		return 0, ctx.Err()
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return 0, err
	}
}

func (t *SSHTransport) Exec(ctx context.Context, cmd string) (Result, error) {
	var stdout, stderr bytes.Buffer
	code, err := t.run(ctx, cmd, nil, &stdout, &stderr)
	return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code}, err
}

func (t *SSHTransport) MkdirAll(ctx context.Context, dir string) error {
	res, err := t.Exec(ctx, "mkdir -p "+command.Quote(dir))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("mkdir %s: exit %d: %s", dir, res.ExitCode, res.Stderr)
	}
	return nil
}

func (t *SSHTransport) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var stderr bytes.Buffer
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", command.Quote(path.Dir(remotePath)), command.Quote(remotePath))
	code, err := t.run(ctx, cmd, f, io.Discard, &stderr)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("upload %s: exit %d: %s", remotePath, code, stderr.String())
	}
	return nil
}

func (t *SSHTransport) Download(ctx context.Context, remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o775); err != nil {
		return err
	}
	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o664)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	code, err := t.run(ctx, "cat "+command.Quote(remotePath), nil, f, &stderr)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("download %s: exit %d: %s", remotePath, code, stderr.String())
	}
	return nil
}

var _ Transport = (*SSHTransport)(nil)
