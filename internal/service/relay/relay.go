// Package relay streams a downloader's output into a multipart create request
// against the destination storage API.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	relaymodel "github.com/zhouzirui/driverelay/internal/model/relay"
	"github.com/zhouzirui/driverelay/internal/service/source"
	"github.com/zhouzirui/driverelay/internal/service/task"
)

const (
	// DefaultDestinationURL is the Drive v3 multipart create endpoint.
	DefaultDestinationURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"

	defaultObjectPrefix   = "video_"
	defaultMediaExtension = ".mp4"
	defaultContentType    = "video/mp4"

	// StreamingPercent is reported once bytes start flowing; the total size is unknown.
	StreamingPercent = 50

	responseExcerptBytes = 2048
)

var errRequestDone = errors.New("upload request finished")

// Tracker receives the progress of one task.
type Tracker interface {
	Update(handle string, u task.Update) error
	AddBytes(handle string, n int64) error
}

// Config describes the destination and naming of uploaded objects.
type Config struct {
	DestinationURL string
	ObjectPrefix   string
	MediaExtension string
	ContentType    string
	FolderID       string
	// Transport is the base round tripper under the bearer-token transport.
	Transport http.RoundTripper
	// Timeout bounds a whole upload; zero leaves it to the transport.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Job is one relay request. Credential is borrowed by value for the upload.
type Job struct {
	TaskID     string
	Locator    string
	Credential []byte
}

// Relay moves bytes from a source.Stream into the destination API.
type Relay struct {
	launcher       source.Launcher
	tracker        Tracker
	destinationURL string
	objectPrefix   string
	mediaExtension string
	contentType    string
	folderID       string
	transport      http.RoundTripper
	timeout        time.Duration
	logger         *slog.Logger
}

// New builds a relay, filling in Drive defaults for unset fields.
func New(launcher source.Launcher, tracker Tracker, cfg Config) *Relay {
	r := &Relay{
		launcher:       launcher,
		tracker:        tracker,
		destinationURL: strings.TrimSpace(cfg.DestinationURL),
		objectPrefix:   cfg.ObjectPrefix,
		mediaExtension: cfg.MediaExtension,
		contentType:    strings.TrimSpace(cfg.ContentType),
		folderID:       strings.TrimSpace(cfg.FolderID),
		transport:      cfg.Transport,
		timeout:        cfg.Timeout,
		logger:         cfg.Logger,
	}
	if r.destinationURL == "" {
		r.destinationURL = DefaultDestinationURL
	}
	if r.objectPrefix == "" {
		r.objectPrefix = defaultObjectPrefix
	}
	if r.mediaExtension == "" {
		r.mediaExtension = defaultMediaExtension
	}
	if r.contentType == "" {
		r.contentType = defaultContentType
	}
	if r.transport == nil {
		r.transport = http.DefaultTransport
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run performs the relay for job and records every phase in the tracker. The
// returned error mirrors the Failed snapshot and is informational only.
func (r *Relay) Run(ctx context.Context, job Job) (err error) {
	logger := r.logger.With("task_id", job.TaskID)
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("relay panic: %v", rec)
			r.fail(logger, job.TaskID, err)
		}
	}()

	token := tokenFromCredential(job.Credential)

	// Cancelling runCtx kills the downloader even while Next is blocked on it.
	runCtx, abandon := context.WithCancel(ctx)
	defer abandon()

	stream := r.launcher.Launch(runCtx, job.Locator)
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			logger.Warn("failed to terminate downloader", "error", closeErr)
		}
	}()

	r.update(logger, job.TaskID, task.Update{Status: relaymodel.StatusStreaming, Percent: StreamingPercent})
	logger.Info("relay streaming", "locator", job.Locator, "object", r.ObjectName(job.TaskID))

	if err := r.upload(runCtx, abandon, job.TaskID, token, stream); err != nil {
		r.fail(logger, job.TaskID, err)
		return err
	}

	r.update(logger, job.TaskID, task.Update{Status: relaymodel.StatusCompleted, Percent: 100})
	logger.Info("relay completed", "object", r.ObjectName(job.TaskID))
	return nil
}

// upload sends the multipart request. abandon is called once the destination
// has answered or the request failed, so a stalled source cannot hold the relay.
func (r *Relay) upload(ctx context.Context, abandon context.CancelFunc, taskID string, token *oauth2.Token, stream source.Stream) error {
	pr, pw := io.Pipe()
	body := multipart.NewWriter(pw)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &source.SourceError{Err: fmt.Errorf("panic while reading: %v", rec)}
			}
			pw.CloseWithError(err)
		}()
		return r.writeBody(taskID, body, stream)
	})

	req, err := http.NewRequestWithContext(gctx, http.MethodPost, r.destinationURL, pr)
	if err != nil {
		abandon()
		pr.CloseWithError(err)
		_ = g.Wait()
		return &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	// Unknown length: the transport falls back to chunked framing.
	req.ContentLength = -1
	req.Header.Set("Content-Type", "multipart/related; boundary="+body.Boundary())

	resp, doErr := r.client(token).Do(req)
	var excerpt string
	if resp != nil {
		excerpt = readExcerpt(resp.Body)
		_ = resp.Body.Close()
	}
	// The server may answer before consuming the whole body. Stop the source
	// and unblock the producer whether it is writing or waiting in Next.
	abandon()
	pr.CloseWithError(errRequestDone)
	writeErr := g.Wait()

	var srcErr *source.SourceError
	switch {
	case resp != nil && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return &DestinationRejectedError{StatusCode: resp.StatusCode, Body: excerpt}
	case errors.As(writeErr, &srcErr):
		return srcErr
	case doErr != nil:
		return &TransportError{Err: doErr}
	}
	return nil
}

// writeBody emits the metadata part followed by the media part, pulling one
// chunk at a time from stream.
func (r *Relay) writeBody(taskID string, body *multipart.Writer, stream source.Stream) error {
	metaPart, err := body.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return fmt.Errorf("create metadata part: %w", err)
	}
	if err := json.NewEncoder(metaPart).Encode(r.metadataFor(taskID)); err != nil {
		return fmt.Errorf("write metadata part: %w", err)
	}

	mediaPart, err := body.CreatePart(textproto.MIMEHeader{"Content-Type": {r.contentType}})
	if err != nil {
		return fmt.Errorf("create media part: %w", err)
	}
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var srcErr *source.SourceError
			if errors.As(err, &srcErr) {
				return srcErr
			}
			return &source.SourceError{Err: err}
		}
		if _, err := mediaPart.Write(chunk); err != nil {
			return fmt.Errorf("write media part: %w", err)
		}
		if err := r.tracker.AddBytes(taskID, int64(len(chunk))); err != nil {
			r.logger.Debug("progress update dropped", "task_id", taskID, "error", err)
		}
	}
	if err := body.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}
	return nil
}

func (r *Relay) client(token *oauth2.Token) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   r.transport,
		},
		Timeout: r.timeout,
	}
}

func (r *Relay) update(logger *slog.Logger, taskID string, u task.Update) {
	if err := r.tracker.Update(taskID, u); err != nil {
		logger.Warn("failed to record task progress", "status", u.Status, "error", err)
	}
}

func (r *Relay) fail(logger *slog.Logger, taskID string, err error) {
	r.update(logger, taskID, task.Update{Status: relaymodel.StatusFailed, Error: err.Error()})
	logger.Error("relay failed", "error", err)
}

func readExcerpt(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, responseExcerptBytes))
	return strings.TrimSpace(string(data))
}
