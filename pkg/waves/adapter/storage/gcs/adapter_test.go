package gcs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageconfig "github.com/tigerroll/waves/pkg/waves/adapter/storage/config"
	"github.com/tigerroll/waves/pkg/waves/adapter/storage/gcs"
)

func TestClientOptions(t *testing.T) {
	assert.Empty(t, gcs.ClientOptions(storageconfig.StorageConfig{}))
	assert.Len(t, gcs.ClientOptions(storageconfig.StorageConfig{CredentialsFile: "/etc/key.json"}), 1)
	assert.Len(t, gcs.ClientOptions(storageconfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
	assert.Len(t, gcs.ClientOptions(storageconfig.StorageConfig{
		Endpoint: "http://localhost:4443/storage/v1/", CredentialsFile: "/etc/key.json",
	}), 2)
}

func TestOpenAgainstEmulatorEndpoint(t *testing.T) {
	conn, err := gcs.Open(context.Background(), storageconfig.StorageConfig{
		Type: "gcs", BucketName: "waves", Endpoint: "http://localhost:4443/storage/v1/",
	}, "emulator")
	require.NoError(t, err)
	assert.Equal(t, "gcs", conn.Type())
	assert.Equal(t, "emulator", conn.Name())
	assert.NoError(t, conn.Close())
}
