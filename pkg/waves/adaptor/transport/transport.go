// Package transport provides the command and file transfer strategies the
// shell and cluster backends run on: the local machine or an SSH session.
package transport

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
)

// Result is the outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Transport executes shell commands and moves files to and from the execution host.
// Exec only returns an error when the command could not be run; a non-zero
// exit status is reported through Result.ExitCode.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
	Exec(ctx context.Context, command string) (Result, error)
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	MkdirAll(ctx context.Context, remoteDir string) error
	// Local reports whether remote paths are paths of this machine.
	Local() bool
}

// Mode selects the transport and authentication strategy.
type Mode string

const (
	ModeLocal    Mode = "local"
	ModePassword Mode = "password"
	ModeKey      Mode = "key"
)

// Connection holds the connection parameters shared by the shell and cluster
// adaptors. The mode is fixed by the adaptor kind and never serialized.
type Connection struct {
	Protocol        string `json:"protocol"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	User            string `json:"user"`
	CryptPassword   string `json:"crypt_password"`
	PrivateKey      string `json:"private_key"`
	CryptPassphrase string `json:"crypt_passphrase"`
	KnownHosts      string `json:"known_hosts"`
	RemoteDir       string `json:"remote_dir"`

	mode Mode
}

// LocalConnection returns the defaults of the local kinds.
func LocalConnection() Connection {
	return Connection{Protocol: "local", Host: "localhost", mode: ModeLocal}
}

// SSHConnection returns the defaults of the SSH kinds.
func SSHConnection(mode Mode) Connection {
	return Connection{Protocol: "ssh", Port: 22, RemoteDir: "waves", mode: mode}
}

// Mode returns the transport mode.
func (c Connection) Mode() Mode {
	if c.mode == "" {
		return ModeLocal
	}
	return c.mode
}

// WithMode returns a copy of c using mode m.
func (c Connection) WithMode(m Mode) Connection {
	c.mode = m
	return c
}

// InitParams lists the connection parameters relevant to the mode.
func (c Connection) InitParams() []adaptor.InitParam {
	params := []adaptor.InitParam{
		{Name: "protocol", Value: c.Protocol, Required: true},
		{Name: "host", Value: c.Host, Required: true},
	}
	port := ""
	if c.Port > 0 {
		port = strconv.Itoa(c.Port)
	}
	switch c.Mode() {
	case ModePassword:
		params = append(params,
			adaptor.InitParam{Name: "port", Value: port, Required: true},
			adaptor.InitParam{Name: "user", Value: c.User, Required: true},
			adaptor.InitParam{Name: "crypt_password", Value: c.CryptPassword, Required: true},
			adaptor.InitParam{Name: "remote_dir", Value: c.RemoteDir, Required: true},
		)
	case ModeKey:
		params = append(params,
			adaptor.InitParam{Name: "port", Value: port, Required: true},
			adaptor.InitParam{Name: "user", Value: c.User, Required: true},
			adaptor.InitParam{Name: "private_key", Value: c.PrivateKey, Required: true},
			adaptor.InitParam{Name: "crypt_passphrase", Value: c.CryptPassphrase},
			adaptor.InitParam{Name: "remote_dir", Value: c.RemoteDir, Required: true},
		)
	}
	return params
}

// ConnexionString returns "protocol://host".
func (c Connection) ConnexionString() string {
	return fmt.Sprintf("%s://%s", c.Protocol, c.Host)
}

// New builds the transport matching the connection mode.
func New(c Connection) (Transport, error) {
	switch c.Mode() {
	case ModeLocal:
		return NewLocal(), nil
	case ModePassword:
		return NewSSH(c, PasswordAuth{Password: c.CryptPassword}), nil
	case ModeKey:
		return NewSSH(c, KeyAuth{KeyFile: c.PrivateKey, Passphrase: c.CryptPassphrase}), nil
	}
	return nil, fmt.Errorf("unsupported transport mode %q", c.mode)
}
