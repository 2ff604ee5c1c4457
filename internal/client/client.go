// Package client wires configuration, session and remote clients into a
// streamfs filesystem and implements the user flows on top of it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"google.golang.org/genproto/googleapis/bytestream"

	"github.com/TheMichaelB/streamfs/internal/blobcache"
	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/creds"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/inputstore"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

// Client provides the high-level API for streamfs operations.
type Client struct {
	FS       *streamfs.FS
	Sessions *creds.Store

	config   *config.Config
	logger   *events.Logger
	setToken func(string)
	closers  []func() error
}

// Options overrides collaborators built from configuration.
type Options struct {
	// Inputs and Blobs replace the configured remote clients when set.
	Inputs transport.InputsClient
	Blobs  transport.BlobClient
	Cache  blobcache.Cache

	Prompter streamfs.Prompter
	Open     func(uri string)
	Replaced func(oldURI, newURI string)
	Progress func(uri string, sent, total int64)
}

// New creates a client. Remote connections are established lazily.
func New(cfg *config.Config, logger *events.Logger, opts Options) (*Client, error) {
	c := &Client{
		Sessions: creds.NewStore(cfg.Auth.TokenFile, logger),
		config:   cfg,
		logger:   logger.WithField("component", "client"),
		setToken: func(string) {},
	}

	inputs, blobs := opts.Inputs, opts.Blobs
	if inputs == nil || blobs == nil {
		if err := c.connect(cfg, logger, &inputs, &blobs); err != nil {
			c.Close()
			return nil, err
		}
	}

	cache := opts.Cache
	if cache == nil {
		var err error
		cache, err = blobcache.New(&cfg.Cache, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("create blob cache: %w", err)
		}
	}

	c.FS = streamfs.New(streamfs.Options{
		Inputs: inputs,
		Blobs:  blobs,
		Cache:  cache,
		Hooks: streamfs.Hooks{
			Prompter: opts.Prompter,
			Open:     opts.Open,
			Replaced: opts.Replaced,
			Progress: opts.Progress,
		},
		Logger:   logger,
		Transfer: cfg.Transfer,
		Uploader: c.copyToImageHost,
	})
	c.closers = append(c.closers, c.FS.Close)

	return c, nil
}

// connect fills in the clients not supplied by the caller.
func (c *Client) connect(cfg *config.Config, logger *events.Logger, inputs *transport.InputsClient, blobs *transport.BlobClient) error {
	switch cfg.API.Backend {
	case "http", "":
		t, err := transport.NewTransport(cfg, logger)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, t.Close)
		c.setToken = t.SetToken
		if *inputs == nil {
			*inputs = t.Inputs
		}
		if *blobs == nil {
			*blobs = t.Blobs
		}
		return nil

	case "sqlite":
		if *inputs == nil {
			store, err := inputstore.NewSQLiteStore(cfg.DevServer.SQLitePath, logger)
			if err != nil {
				return fmt.Errorf("open input store: %w", err)
			}
			c.closers = append(c.closers, store.Close)
			*inputs = store
		}
		if *blobs == nil {
			tokens := &transport.TokenSource{}
			conn, err := transport.DialBlobs(&cfg.ByteStream, tokens)
			if err != nil {
				return err
			}
			c.closers = append(c.closers, conn.Close)
			c.setToken = tokens.Set
			*blobs = bytestream.NewByteStreamClient(conn)
		}
		return nil

	default:
		return fmt.Errorf("unknown api backend %q", cfg.API.Backend)
	}
}

// Login stores session and materializes the user's directory.
func (c *Client) Login(ctx context.Context, session *creds.Session) (*streamfs.UserNode, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if err := c.Sessions.Save(session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.setToken(session.Token)

	c.logger.WithField("login", session.Login).Info("Logged in")
	return c.FS.AddUser(session.Login), nil
}

// Restore resumes the stored session. It returns creds.ErrNoSession when
// there is none.
func (c *Client) Restore(ctx context.Context) (*streamfs.UserNode, error) {
	session, err := c.Sessions.Load()
	if err != nil {
		return nil, err
	}
	c.setToken(session.Token)
	return c.FS.AddUser(session.Login), nil
}

// Logout drops the user's directory and forgets the session.
func (c *Client) Logout(ctx context.Context) error {
	session, err := c.Sessions.Load()
	if err != nil && !errors.Is(err, creds.ErrNoSession) {
		return err
	}
	if session != nil {
		c.FS.RemoveUser(session.Login)
		c.logger.WithField("login", session.Login).Info("Logged out")
	}
	c.setToken("")
	return c.Sessions.Clear()
}

// UploadPaths reads local files and attaches them to the Input at
// inputURI. Files that could not be read or uploaded are reported in the
// joined error; the others are attached.
func (c *Client) UploadPaths(ctx context.Context, inputURI string, paths []string) ([]*streamfs.AttachmentNode, error) {
	input, err := c.FS.LookupInput(ctx, inputURI)
	if err != nil {
		return nil, err
	}

	var (
		files   []*models.File
		readErr []error
	)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			readErr = append(readErr, fmt.Errorf("read %s: %w", p, err))
			continue
		}
		name := filepath.Base(p)
		if _, ok := models.ContentTypeForName(name); !ok {
			readErr = append(readErr, models.NoPermissions("%s: unsupported attachment type %q", input.Title(), filepath.Ext(name)))
			continue
		}
		files = append(files, &models.File{Name: name, Data: data})
	}
	if len(files) == 0 {
		return nil, errors.Join(readErr...)
	}

	added, err := input.UploadFiles(ctx, files)
	c.FS.Flush()
	return added, errors.Join(append(readErr, err)...)
}

// SetStatus publishes or unpublishes the Input at uri.
func (c *Client) SetStatus(ctx context.Context, uri string, st models.Status) error {
	input, err := c.FS.LookupInput(ctx, uri)
	if err != nil {
		return err
	}
	return input.UpdateStatus(ctx, st)
}

// copyToImageHost writes the source file into the Input named by the
// target path, so an attachment can be copied between documents.
func (c *Client) copyToImageHost(ctx context.Context, source streamfs.File, target *url.URL) error {
	data, err := source.Data(ctx)
	if err != nil {
		return err
	}
	dst := streamfs.CleanURI(target.Path)
	if dst == "/" {
		return models.NoPermissions("copy target %s names no file", target)
	}

	c.logger.WithFields(map[string]interface{}{
		"source": source.URI(),
		"target": dst,
	}).Debug("Copying to image host")
	return c.FS.WriteFile(ctx, dst, data, streamfs.WriteOptions{Create: true, Overwrite: true})
}

// Close releases remote connections and flushes pending change events.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
