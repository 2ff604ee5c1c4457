package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/TheMichaelB/streamfs/internal/config"
)

// TokenSource holds the session bearer token. It doubles as gRPC per-RPC
// credentials so a token set after dialing applies to later streams.
type TokenSource struct {
	mu       sync.RWMutex
	token    string
	insecure bool
}

// Set replaces the token.
func (s *TokenSource) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Get returns the token.
func (s *TokenSource) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (s *TokenSource) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	token := s.Get()
	if token == "" {
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (s *TokenSource) RequireTransportSecurity() bool {
	return !s.insecure
}

var _ credentials.PerRPCCredentials = (*TokenSource)(nil)

// DialBlobs creates a client connection to the ByteStream service.
func DialBlobs(cfg *config.ByteStreamConfig, tokens *TokenSource, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}

	if tokens != nil {
		tokens.insecure = cfg.Insecure
		opts = append(opts, grpc.WithPerRPCCredentials(tokens))
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial bytestream %s: %w", cfg.Target, err)
	}
	return conn, nil
}
