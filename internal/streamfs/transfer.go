package streamfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/genproto/googleapis/bytestream"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// transferError classifies a stream failure. Cancellation is reported as
// models.ErrCancelled; any other non-OK status becomes a TransferError.
func transferError(ctx context.Context, op, resourceName string, err error) error {
	if errors.Is(err, models.ErrCancelled) {
		return err
	}
	st, ok := status.FromError(err)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || (ok && st.Code() == codes.Canceled) {
		return fmt.Errorf("%s %s: %w", op, resourceName, models.ErrCancelled)
	}
	if !ok {
		st = status.FromContextError(err)
	}
	return &models.TransferError{
		Op:           op,
		ResourceName: resourceName,
		Code:         st.Code(),
		Detail:       st.Message(),
	}
}

// download reads the blob (sha, size) into one buffer and verifies that it
// hashes to its address. Results are served from and stored in the cache.
func (e *env) download(ctx context.Context, sha string, size int64) ([]byte, error) {
	name := models.BlobResourceName(sha, size)

	if data, ok, err := e.cache.Get(ctx, name); err != nil {
		e.logger.WithError(err).WithField("resource", name).Warn("Blob cache read failed")
	} else if ok {
		return data, nil
	}

	blobs, err := e.blobClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := blobs.Read(ctx, &bytestream.ReadRequest{ResourceName: name, ReadOffset: 0})
	if err != nil {
		return nil, transferError(ctx, "download", name, err)
	}

	// size comes from remote metadata; only trust it up to the upload limit.
	buf := make([]byte, 0, min(size, e.maxBodySize))
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, transferError(ctx, "download", name, err)
		}
		if int64(len(buf)+len(resp.GetData())) > size {
			return nil, &models.TransferError{
				Op:           "download",
				ResourceName: name,
				Code:         codes.OutOfRange,
				Detail:       fmt.Sprintf("received more than %d bytes", size),
			}
		}
		buf = append(buf, resp.GetData()...)
	}

	if actual := models.HashBytes(buf); actual != sha {
		return nil, &models.IntegrityError{Path: name, Expected: sha, Actual: actual}
	}

	e.logger.WithFields(map[string]interface{}{
		"resource": name,
		"size":     len(buf),
	}).Debug("Downloaded blob")

	if err := e.cache.Put(ctx, name, buf); err != nil {
		e.logger.WithError(err).WithField("resource", name).Warn("Blob cache write failed")
	}
	return buf, nil
}

// upload streams buf to the per-Input staging address of file in
// chunkSize frames with explicit, strictly increasing write offsets. The
// first frame that lets the image header decode fills in ContentType and
// ImageInfo.
func (e *env) upload(ctx context.Context, inputID string, file *models.File, buf []byte) error {
	size := int64(len(buf))
	if size > e.maxBodySize {
		return models.NoPermissions("%s is %d bytes, larger than the %d byte upload limit",
			file.Name, size, e.maxBodySize)
	}

	blobs, err := e.blobClient()
	if err != nil {
		return err
	}

	name := models.UploadResourceName(inputID, file.Sha256, size)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := blobs.Write(ctx)
	if err != nil {
		return transferError(ctx, "upload", name, err)
	}

	sniffer := newImageSniffer()
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload %s: %w", name, models.ErrCancelled)
		}

		end := offset + int64(e.chunkSize)
		if end > size {
			end = size
		}

		if info, contentType, ok := sniffer.sniff(buf[:end]); ok {
			file.ImageInfo = info
			file.ContentType = contentType
		}

		req := &bytestream.WriteRequest{
			ResourceName: name,
			WriteOffset:  offset,
			Data:         buf[offset:end],
			FinishWrite:  end == size,
		}
		if err := stream.Send(req); err != nil {
			// io.EOF means the server ended the stream; its status
			// comes from CloseAndRecv.
			if err != io.EOF {
				return transferError(ctx, "upload", name, err)
			}
			break
		}

		e.progress(name, end, size)
		offset = end
		if end == size {
			break
		}
	}

	resp, err := stream.CloseAndRecv()
	if err != nil {
		return transferError(ctx, "upload", name, err)
	}
	if resp.GetCommittedSize() != size {
		return &models.TransferError{
			Op:           "upload",
			ResourceName: name,
			Code:         codes.DataLoss,
			Detail:       fmt.Sprintf("committed %d of %d bytes", resp.GetCommittedSize(), size),
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"resource": name,
		"size":     size,
	}).Debug("Uploaded blob")

	if err := e.cache.Put(ctx, models.BlobResourceName(file.Sha256, size), buf); err != nil {
		e.logger.WithError(err).WithField("resource", name).Warn("Blob cache write failed")
	}
	return nil
}
