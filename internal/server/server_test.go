package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/server"
	"github.com/TheMichaelB/streamfs/internal/transport"
	"github.com/TheMichaelB/streamfs/test/testutil"
)

func TestNewRejectsUnknownBackends(t *testing.T) {
	ctx := context.Background()
	logger := testutil.NewTestLogger()

	_, err := server.New(ctx, &config.DevServerConfig{MetaBackend: "etcd", ObjectBackend: "memory"}, logger)
	assert.ErrorContains(t, err, "etcd")

	_, err = server.New(ctx, &config.DevServerConfig{MetaBackend: "memory", ObjectBackend: "tape"}, logger)
	assert.ErrorContains(t, err, "tape")
}

func TestServeUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.New(ctx, &config.DevServerConfig{
		MetaBackend:   "sqlite",
		SQLitePath:    t.TempDir() + "/inputs.db",
		ObjectBackend: "local",
		DataDir:       t.TempDir(),
	}, testutil.NewTestLogger())
	require.NoError(t, err)

	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, grpcLis, httpLis) }()

	client := transport.NewHTTPInputsClient(transport.NewHTTPClient(&config.APIConfig{
		BaseURL: "http://" + httpLis.Addr().String(),
		Timeout: 5 * time.Second,
	}, testutil.NewTestLogger()))

	in, err := client.CreateInput(ctx, testutil.DraftInput("", "Served", "body"))
	require.NoError(t, err)

	remote, err := srv.Inputs().GetInput(ctx, models.InputFilter{Login: testutil.Login, ID: in.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Served", remote.Title)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
