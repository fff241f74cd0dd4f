// Package server implements the teamsyncd gRPC API.
//
// Requests are answered by a Backend. In the daemon the Backend hands
// each request to the event loop, so handlers never touch engine or
// control-channel state from a gRPC goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/selector"
	"github.com/frobware/go-teamsync/server/pb"
	"github.com/frobware/go-teamsync/teamdctl"
)

// Backend answers API requests.
type Backend interface {
	// GetDump returns a teamsync.ErrBundleNotTracked for a bundle
	// without a channel and wraps teamsync.ErrTransport when teamd
	// does not answer.
	GetDump(ctx context.Context, name string) (string, error)
	GetDumps(ctx context.Context) ([]teamdctl.DumpEntry, error)
	ListBundles(ctx context.Context) ([]teamsync.BundleInfo, error)
	AddChannel(ctx context.Context, name string) (bool, error)
	RemoveChannel(ctx context.Context, name string) error
}

// Server implements pb.TeamSyncServer.
type Server struct {
	pb.UnimplementedTeamSyncServer

	backend   Backend
	logger    *slog.Logger
	opCounter atomic.Uint64
}

var _ pb.TeamSyncServer = (*Server)(nil)

// New returns a Server answering from backend.
func New(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{backend: backend, logger: logger.With("component", "server")}
}

// Serve listens on socketPath, and on tcpAddr when it is not empty,
// until ctx is done.
func (s *Server) Serve(ctx context.Context, socketPath, tcpAddr string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	unixListener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", socketPath, err)
	}
	defer unixListener.Close()

	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	grpcServer := s.NewGRPCServer()
	errChan := make(chan error, 2)

	go func() {
		s.logger.InfoContext(ctx, "teamsync gRPC server listening", "socket", socketPath)
		if err := grpcServer.Serve(unixListener); err != nil {
			errChan <- fmt.Errorf("unix socket server: %w", err)
		}
	}()

	if tcpAddr != "" {
		tcpListener, err := net.Listen("tcp", tcpAddr)
		if err != nil {
			grpcServer.GracefulStop()
			return fmt.Errorf("failed to listen on TCP %s: %w", tcpAddr, err)
		}
		go func() {
			s.logger.InfoContext(ctx, "teamsync gRPC server listening", "tcp", tcpAddr)
			if err := grpcServer.Serve(tcpListener); err != nil {
				errChan <- fmt.Errorf("tcp server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "shutting down gRPC server")
		grpcServer.GracefulStop()
		return nil
	case err := <-errChan:
		grpcServer.Stop()
		return err
	}
}

// NewGRPCServer returns a grpc.Server with s registered.
func (s *Server) NewGRPCServer() *grpc.Server {
	g := grpc.NewServer(grpc.UnaryInterceptor(s.loggingInterceptor()))
	pb.RegisterTeamSyncServer(g, s)
	return g
}

// loggingInterceptor numbers each request and logs failures.
func (s *Server) loggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		opID := s.opCounter.Add(1)
		s.logger.DebugContext(ctx, "grpc request", "op_id", opID, "method", info.FullMethod)
		resp, err := handler(ctx, req)
		if err != nil {
			s.logger.ErrorContext(ctx, "grpc error", "op_id", opID, "method", info.FullMethod, "error", err)
		}
		return resp, err
	}
}

// toStatus maps backend errors onto gRPC codes.
func toStatus(err error) error {
	var notTracked teamsync.ErrBundleNotTracked
	switch {
	case errors.As(err, &notTracked):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, teamsync.ErrTransport), errors.Is(err, selector.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func bundleName(req *wrapperspb.StringValue) (string, error) {
	if req.GetValue() == "" {
		return "", status.Error(codes.InvalidArgument, "bundle name is required")
	}
	return req.GetValue(), nil
}

func (s *Server) GetDump(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	name, err := bundleName(req)
	if err != nil {
		return nil, err
	}
	dump, err := s.backend.GetDump(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(dump), nil
}

func (s *Server) GetDumps(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	entries, err := s.backend.GetDumps(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return dumpsToStruct(entries), nil
}

func (s *Server) ListBundles(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	bundles, err := s.backend.ListBundles(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return bundlesToList(bundles), nil
}

func (s *Server) AddChannel(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	name, err := bundleName(req)
	if err != nil {
		return nil, err
	}
	ok, err := s.backend.AddChannel(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}

func (s *Server) RemoveChannel(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	name, err := bundleName(req)
	if err != nil {
		return nil, err
	}
	if err := s.backend.RemoveChannel(ctx, name); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}
