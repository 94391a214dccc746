package transport_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/tigerroll/waves/pkg/waves/adaptor/transport"
)

// startSSHServer runs a minimal exec-only SSH server accepting password "secret".
func startSSHServer(t *testing.T) (host string, port int) {
	t.Helper()
	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, cfg)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func serveConn(nc net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)
	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := nch.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range chReqs {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				cmd := exec.Command("/bin/sh", "-c", payload.Command)
				cmd.Stdin = ch
				cmd.Stdout = ch
				cmd.Stderr = ch.Stderr()
				code := 0
				if err := cmd.Run(); err != nil {
					var exitErr *exec.ExitError
					if errors.As(err, &exitErr) {
						code = exitErr.ExitCode()
					} else {
						code = 127
					}
				}
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
				return
			}
		}()
	}
}

func newSSH(t *testing.T, password string) *transport.SSHTransport {
	host, port := startSSHServer(t)
	c := transport.SSHConnection(transport.ModePassword)
	c.Host = host
	c.Port = port
	c.User = "waves"
	c.CryptPassword = password
	return transport.NewSSH(c, transport.PasswordAuth{Password: password})
}

func TestSSHExecAndTransfer(t *testing.T) {
	tr := newSSH(t, "secret")
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx))
	defer tr.Close()
	assert.False(t, tr.Local())

	res, err := tr.Exec(ctx, "echo hello; exit 4")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 4, res.ExitCode)

	dir := t.TempDir()
	local := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(local, []byte("over the wire"), 0o664))
	remote := filepath.Join(dir, "remote", "in.txt")
	require.NoError(t, tr.Upload(ctx, local, remote))

	back := filepath.Join(dir, "back", "in.txt")
	require.NoError(t, tr.Download(ctx, remote, back))
	data, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "over the wire", string(data))

	require.NoError(t, tr.MkdirAll(ctx, filepath.Join(dir, "a", "b")))
	_, err = os.Stat(filepath.Join(dir, "a", "b"))
	assert.NoError(t, err)
}

func TestSSHWrongPassword(t *testing.T) {
	tr := newSSH(t, "wrong")
	err := tr.Open(context.Background())
	assert.Error(t, err)
}

func TestSSHExecBeforeOpen(t *testing.T) {
	tr := transport.NewSSH(transport.SSHConnection(transport.ModePassword), transport.PasswordAuth{})
	_, err := tr.Exec(context.Background(), "true")
	assert.Error(t, err)
}

func TestKeyAuth(t *testing.T) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	dir := t.TempDir()

	block, err := ssh.MarshalPrivateKey(key, "waves")
	require.NoError(t, err)
	plain := filepath.Join(dir, "id_plain")
	require.NoError(t, os.WriteFile(plain, pem.EncodeToMemory(block), 0o600))

	methods, err := transport.KeyAuth{KeyFile: plain}.Methods()
	require.NoError(t, err)
	assert.Len(t, methods, 1)

	block, err = ssh.MarshalPrivateKeyWithPassphrase(key, "waves", []byte("phrase"))
	require.NoError(t, err)
	enc := filepath.Join(dir, "id_enc")
	require.NoError(t, os.WriteFile(enc, pem.EncodeToMemory(block), 0o600))

	_, err = transport.KeyAuth{KeyFile: enc, Passphrase: "phrase"}.Methods()
	require.NoError(t, err)
	_, err = transport.KeyAuth{KeyFile: enc}.Methods()
	assert.Error(t, err)
	_, err = transport.KeyAuth{KeyFile: filepath.Join(dir, "missing")}.Methods()
	assert.Error(t, err)
}
