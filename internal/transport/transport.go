package transport

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/bytestream"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
)

// InputsClient is the metadata contract of the Inputs service.
type InputsClient interface {
	CreateInput(ctx context.Context, input *models.Input) (*models.Input, error)
	// GetInput looks up by {Login, ID} or {Login, Title}. A nil mask returns
	// every field.
	GetInput(ctx context.Context, filter models.InputFilter, mask *fieldmaskpb.FieldMask) (*models.Input, error)
	// UpdateInput writes only the fields named by mask and returns the
	// stored Input.
	UpdateInput(ctx context.Context, input *models.Input, mask *fieldmaskpb.FieldMask) (*models.Input, error)
	RemoveInput(ctx context.Context, id string) error
	ListInputs(ctx context.Context, filter models.InputFilter) ([]*models.Input, error)
}

// BlobClient is the subset of the ByteStream service used for transfers.
// bytestream.ByteStreamClient satisfies it.
type BlobClient interface {
	Read(ctx context.Context, in *bytestream.ReadRequest, opts ...grpc.CallOption) (bytestream.ByteStream_ReadClient, error)
	Write(ctx context.Context, opts ...grpc.CallOption) (bytestream.ByteStream_WriteClient, error)
}

var _ BlobClient = bytestream.ByteStreamClient(nil)

// Mask builds an update mask from field paths.
func Mask(paths ...string) *fieldmaskpb.FieldMask {
	return &fieldmaskpb.FieldMask{Paths: paths}
}

// Transport bundles the two remote clients of one session.
type Transport struct {
	Inputs InputsClient
	Blobs  BlobClient

	http  *HTTPClient
	conn  *grpc.ClientConn
	token *TokenSource
}

// NewTransport creates the HTTP Inputs client and dials the ByteStream
// service. The connection is established lazily on first use.
func NewTransport(cfg *config.Config, logger *events.Logger) (*Transport, error) {
	token := &TokenSource{}

	httpClient := NewHTTPClient(&cfg.API, logger)
	httpClient.tokens = token

	conn, err := DialBlobs(&cfg.ByteStream, token)
	if err != nil {
		return nil, err
	}

	return &Transport{
		Inputs: NewHTTPInputsClient(httpClient),
		Blobs:  bytestream.NewByteStreamClient(conn),
		http:   httpClient,
		conn:   conn,
		token:  token,
	}, nil
}

// SetToken sets the bearer token used by both clients.
func (t *Transport) SetToken(token string) {
	t.token.Set(token)
}

// GetToken returns the current bearer token.
func (t *Transport) GetToken() string {
	return t.token.Get()
}

// Close releases the ByteStream connection.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if errors.Is(err, grpc.ErrClientConnClosing) {
		return nil
	}
	return err
}
