// Package download fetches product archives into a local directory. URLs
// may be http(s):// or s3://bucket/key; files already present are skipped.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/ratelimit"
	"github.com/sdejongh/scival/pkg/storage"
)

// Request is one file to fetch
type Request struct {
	URL string

	// ChecksumURL points to an MD5 checksum file verified after download
	ChecksumURL string
}

// URLs builds requests without checksums
func URLs(urls ...string) []Request {
	reqs := make([]Request, len(urls))
	for i, u := range urls {
		reqs[i] = Request{URL: u}
	}
	return reqs
}

// Result is the outcome of one request
type Result struct {
	URL     string
	Path    string
	Bytes   int64
	Skipped bool
	MD5     string
	Err     error
}

// ObjectStore opens the backend of an s3:// bucket
type ObjectStore func(ctx context.Context, bucket string) (storage.Backend, error)

// Fetcher downloads files with a bounded number of workers sharing one
// bandwidth budget
type Fetcher struct {
	MaxWorkers   int
	Limiter      *ratelimit.Limiter
	SkipExisting bool

	// Wrap is applied to every download body when set (e.g. progress)
	Wrap storage.ReaderWrapper

	HTTP    *http.Client
	Objects ObjectStore
	Logger  logging.Logger
}

// NewFetcher creates a fetcher; bytesPerSecond <= 0 disables limiting
func NewFetcher(maxWorkers int, bytesPerSecond int64, skipExisting bool, logger logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Fetcher{
		MaxWorkers:   maxWorkers,
		Limiter:      ratelimit.NewLimiter(bytesPerSecond),
		SkipExisting: skipExisting,
		HTTP:         &http.Client{},
		Logger:       logger,
	}
}

// Fetch downloads every request into dir. Per-file failures are recorded in
// the results and joined into the returned error; cancelling ctx stops
// pending downloads.
func (f *Fetcher) Fetch(ctx context.Context, reqs []Request, dir string) ([]Result, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	out, err := storage.NewLocal(dir)
	if err != nil {
		return nil, err
	}

	workers := f.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = f.fetchOne(gctx, out, req)
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.URL, r.Err))
		}
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}

func (f *Fetcher) fetchOne(ctx context.Context, out *storage.Local, req Request) Result {
	res := Result{URL: req.URL}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	name, err := fileName(req.URL)
	if err != nil {
		res.Err = err
		return res
	}
	res.Path = filepath.Join(out.Root(), name)
	fields := logging.Fields{"url": req.URL, "path": res.Path}

	if f.SkipExisting {
		if info, err := out.Stat(ctx, name); err == nil && info.Size > 0 {
			res.Skipped = true
			res.Bytes = info.Size
			f.Logger.Info(ctx, "File already downloaded, skipping", fields)
			return res
		}
	}

	start := time.Now()
	body, size, err := f.open(ctx, req.URL)
	if err != nil {
		f.Logger.Error(ctx, "Could not download", err, fields)
		res.Err = err
		return res
	}
	if f.Wrap != nil {
		body = f.Wrap(body)
	}
	defer body.Close()

	hasher := newHasher()
	reader := io.TeeReader(ratelimit.NewReader(ctx, body, f.Limiter), hasher)
	if err := out.Write(ctx, name, reader, size, nil); err != nil {
		f.Logger.Error(ctx, "Could not download", err, fields)
		res.Err = err
		return res
	}
	res.MD5 = hasher.Sum()
	res.Bytes = hasher.Size()

	if req.ChecksumURL != "" {
		if err := f.verify(ctx, req.ChecksumURL, res.MD5); err != nil {
			os.Remove(res.Path)
			f.Logger.Error(ctx, "Checksum verification failed", err, fields)
			res.Err = err
			return res
		}
	}

	elapsed := time.Since(start).Seconds()
	if elapsed > 0 {
		fields["mb_per_s"] = float64(res.Bytes) / 1024 / 1024 / elapsed
	}
	fields["bytes"] = res.Bytes
	f.Logger.Info(ctx, "Download complete", fields)
	return res
}

// open returns the body of url and its size, -1 when unknown
func (f *Fetcher) open(ctx context.Context, raw string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			return nil, 0, err
		}
		client := f.HTTP
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("unexpected response: %s", resp.Status)
		}
		return resp.Body, resp.ContentLength, nil

	case "s3":
		bucket, key, err := storage.ParseS3URL(raw)
		if err != nil {
			return nil, 0, err
		}
		if f.Objects == nil {
			return nil, 0, fmt.Errorf("no object store configured for %s", raw)
		}
		backend, err := f.Objects(ctx, bucket)
		if err != nil {
			return nil, 0, err
		}
		size := int64(-1)
		if info, err := backend.Stat(ctx, key); err == nil {
			size = info.Size
		}
		body, err := backend.Read(ctx, key)
		if err != nil {
			return nil, 0, err
		}
		return body, size, nil

	default:
		return nil, 0, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

func fileName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("URL %s has no file name", raw)
	}
	return name, nil
}
