// Package transporttest provides a testify mock of transport.Transport.
package transporttest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/waves/pkg/waves/adaptor/transport"
)

// MockTransport records the commands it is asked to run.
type MockTransport struct {
	mock.Mock
	// Remote makes Local return false.
	Remote bool
}

func (m *MockTransport) Open(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTransport) Close() error {
	return m.Called().Error(0)
}

func (m *MockTransport) Exec(ctx context.Context, cmd string) (transport.Result, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(transport.Result), args.Error(1)
}

func (m *MockTransport) Upload(ctx context.Context, localPath, remotePath string) error {
	return m.Called(ctx, localPath, remotePath).Error(0)
}

func (m *MockTransport) Download(ctx context.Context, remotePath, localPath string) error {
	return m.Called(ctx, remotePath, localPath).Error(0)
}

func (m *MockTransport) MkdirAll(ctx context.Context, dir string) error {
	return m.Called(ctx, dir).Error(0)
}

func (m *MockTransport) Local() bool { return !m.Remote }

var _ transport.Transport = (*MockTransport)(nil)
