package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genproto/googleapis/bytestream"
	"google.golang.org/grpc"

	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/inputstore"
	"github.com/TheMichaelB/streamfs/internal/storage"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

// Server runs the Inputs API and the ByteStream service side by side.
type Server struct {
	cfg    *config.DevServerConfig
	logger *events.Logger

	inputs transport.InputsClient
	close  func() error
	blobs  *ByteStreamServer

	grpcServer *grpc.Server
	httpServer *http.Server
}

// New builds the backends selected by cfg.
func New(ctx context.Context, cfg *config.DevServerConfig, logger *events.Logger) (*Server, error) {
	logger = logger.WithField("component", "devserver")

	inputs, closeInputs, err := openInputStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg, logger)
	if err != nil {
		closeInputs()
		return nil, fmt.Errorf("open object store: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		inputs: inputs,
		close:  closeInputs,
		blobs:  NewByteStreamServer(objects, logger),
	}

	s.grpcServer = grpc.NewServer(grpc.ChainStreamInterceptor(s.logStream))
	bytestream.RegisterByteStreamServer(s.grpcServer, s.blobs)

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewInputsHandler(inputs, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func openInputStore(ctx context.Context, cfg *config.DevServerConfig, logger *events.Logger) (transport.InputsClient, func() error, error) {
	switch cfg.MetaBackend {
	case "memory", "":
		return inputstore.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		store, err := inputstore.NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open input store: %w", err)
		}
		return store, store.Close, nil
	case "dynamodb":
		client, err := inputstore.NewDynamoDBClient(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open input store: %w", err)
		}
		return inputstore.NewDynamoDBStore(client, cfg.DynamoTable, logger), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown metadata backend %q", cfg.MetaBackend)
	}
}

// Inputs returns the metadata store.
func (s *Server) Inputs() transport.InputsClient {
	return s.inputs
}

// Blobs returns the ByteStream service.
func (s *Server) Blobs() *ByteStreamServer {
	return s.blobs
}

// GRPCServer returns the gRPC server the ByteStream service is registered
// on.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Handler returns the Inputs API handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens on the configured addresses until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	grpcLis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.GRPCAddr, err)
	}
	httpLis, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		grpcLis.Close()
		return fmt.Errorf("listen %s: %w", s.cfg.HTTPAddr, err)
	}
	return s.Serve(ctx, grpcLis, httpLis)
}

// Serve runs both services on the given listeners until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.WithField("addr", grpcLis.Addr().String()).Info("ByteStream service listening")
		return s.grpcServer.Serve(grpcLis)
	})
	g.Go(func() error {
		s.logger.WithField("addr", httpLis.Addr().String()).Info("Inputs API listening")
		if err := s.httpServer.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.grpcServer.GracefulStop()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := s.close(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) logStream(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)

	logger := s.logger.WithFields(map[string]interface{}{
		"method":   info.FullMethod,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		logger.WithError(err).Warn("Stream failed")
	} else {
		logger.Debug("Stream finished")
	}
	return err
}
