// Package server implements the development backend: a ByteStream gRPC
// service over an object store and the Inputs HTTP/JSON API over an Input
// store.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/genproto/googleapis/bytestream"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/storage"
)

// DefaultReadChunk is the frame size of Read responses.
const DefaultReadChunk = 64 * 1024

// ByteStreamServer stages uploads under their per-Input resource name,
// verifies them against their content address and commits them to the
// global blob name.
type ByteStreamServer struct {
	bytestream.UnimplementedByteStreamServer

	store     storage.ObjectStore
	logger    *events.Logger
	readChunk int

	mu        sync.Mutex
	committed map[string]int64
	complete  map[string]bool
}

// NewByteStreamServer serves blobs from store.
func NewByteStreamServer(store storage.ObjectStore, logger *events.Logger) *ByteStreamServer {
	return &ByteStreamServer{
		store:     store,
		logger:    logger.WithField("component", "bytestream"),
		readChunk: DefaultReadChunk,
		committed: make(map[string]int64),
		complete:  make(map[string]bool),
	}
}

// Read streams a committed blob from ReadOffset, up to ReadLimit bytes when
// the limit is positive.
func (s *ByteStreamServer) Read(req *bytestream.ReadRequest, stream bytestream.ByteStream_ReadServer) error {
	name := req.GetResourceName()
	inputID, _, _, err := models.ParseResourceName(name)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if inputID != "" {
		return status.Errorf(codes.InvalidArgument, "%s is an upload name", name)
	}
	if req.GetReadOffset() < 0 || req.GetReadLimit() < 0 {
		return status.Error(codes.OutOfRange, "negative read offset or limit")
	}

	data, err := s.store.GetObject(stream.Context(), name)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return status.Errorf(codes.NotFound, "blob %s not found", name)
	}
	if err != nil {
		return status.Errorf(codes.Internal, "read %s: %v", name, err)
	}

	offset := req.GetReadOffset()
	if offset > int64(len(data)) {
		return status.Errorf(codes.OutOfRange, "read offset %d past end %d", offset, len(data))
	}
	end := int64(len(data))
	if limit := req.GetReadLimit(); limit > 0 && offset+limit < end {
		end = offset + limit
	}

	for offset < end {
		if err := stream.Context().Err(); err != nil {
			return status.FromContextError(err).Err()
		}
		next := offset + int64(s.readChunk)
		if next > end {
			next = end
		}
		if err := stream.Send(&bytestream.ReadResponse{Data: data[offset:next]}); err != nil {
			return err
		}
		offset = next
	}

	s.logger.WithFields(map[string]interface{}{
		"resource": name,
		"size":     len(data),
	}).Debug("Served blob")
	return nil
}

// Write accepts frames with contiguous write offsets. On finish_write the
// staged bytes must match the size and sha256 of the resource name.
func (s *ByteStreamServer) Write(stream bytestream.ByteStream_WriteServer) error {
	ctx := stream.Context()

	var (
		name   string
		sha    string
		size   int64
		offset int64
		buf    bytes.Buffer
	)
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return status.Errorf(codes.InvalidArgument, "%s: stream closed before finish_write", name)
		}
		if err != nil {
			return err
		}

		if name == "" {
			name = req.GetResourceName()
			inputID, hash, n, err := models.ParseResourceName(name)
			if err != nil {
				return status.Error(codes.InvalidArgument, err.Error())
			}
			if inputID == "" {
				return status.Errorf(codes.InvalidArgument, "%s is not an upload name", name)
			}
			sha, size = hash, n
		} else if rn := req.GetResourceName(); rn != "" && rn != name {
			return status.Errorf(codes.InvalidArgument, "resource name changed from %s to %s", name, rn)
		}

		if req.GetWriteOffset() != offset {
			return status.Errorf(codes.InvalidArgument, "write_offset %d, expected %d", req.GetWriteOffset(), offset)
		}
		buf.Write(req.GetData())
		offset += int64(len(req.GetData()))
		if offset > size {
			return status.Errorf(codes.InvalidArgument, "%s: %d bytes exceed declared size %d", name, offset, size)
		}
		s.setCommitted(name, offset, false)

		if req.GetFinishWrite() {
			break
		}
	}

	data := buf.Bytes()
	if offset != size {
		return status.Errorf(codes.InvalidArgument, "%s: received %d of %d bytes", name, offset, size)
	}
	if actual := models.HashBytes(data); actual != sha {
		return status.Errorf(codes.DataLoss, "%s: content hashes to %s", name, actual)
	}

	if err := s.commit(ctx, name, data); err != nil {
		return status.Errorf(codes.Internal, "commit %s: %v", name, err)
	}
	s.setCommitted(name, offset, true)

	s.logger.WithFields(map[string]interface{}{
		"resource": name,
		"size":     offset,
	}).Info("Committed blob")
	return stream.SendAndClose(&bytestream.WriteResponse{CommittedSize: offset})
}

// commit stages data under the upload name, then copies it to the global
// blob name and drops the staging object.
func (s *ByteStreamServer) commit(ctx context.Context, uploadName string, data []byte) error {
	_, sha, size, err := models.ParseResourceName(uploadName)
	if err != nil {
		return err
	}
	if err := s.store.PutObject(ctx, uploadName, data); err != nil {
		return err
	}
	if err := s.store.PutObject(ctx, models.BlobResourceName(sha, size), data); err != nil {
		return err
	}
	if err := s.store.DeleteObject(ctx, uploadName); err != nil {
		s.logger.WithError(err).WithField("resource", uploadName).Warn("Failed to drop staged upload")
	}
	return nil
}

func (s *ByteStreamServer) setCommitted(name string, size int64, complete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed[name] = size
	s.complete[name] = complete
}

// QueryWriteStatus reports how much of an upload has been received.
func (s *ByteStreamServer) QueryWriteStatus(ctx context.Context, req *bytestream.QueryWriteStatusRequest) (*bytestream.QueryWriteStatusResponse, error) {
	name := req.GetResourceName()
	s.mu.Lock()
	size, ok := s.committed[name]
	complete := s.complete[name]
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no upload %s", name)
	}
	return &bytestream.QueryWriteStatusResponse{CommittedSize: size, Complete: complete}, nil
}

var _ bytestream.ByteStreamServer = (*ByteStreamServer)(nil)
