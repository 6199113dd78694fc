// Package source loads .avp archives from a local path, an http(s) URL or
// a gs://bucket/object reference.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	logging "github.com/ipfs/go-log/v2"
	"google.golang.org/api/option"
)

var log = logging.Logger("avp/source")

var (
	ErrTooLarge    = errors.New("archive exceeds the size limit")
	ErrUnsupported = errors.New("unsupported source")
)

// Kind classifies a source reference.
type Kind string

const (
	KindFile Kind = "file"
	KindHTTP Kind = "http"
	KindGCS  Kind = "gs"
)

// Ref is a parsed source reference.
type Ref struct {
	Kind   Kind
	Path   string // KindFile
	URL    string // KindHTTP
	Bucket string // KindGCS
	Object string // KindGCS
}

// Parse classifies src. Anything without a recognized scheme is a local path.
func Parse(src string) (Ref, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return Ref{}, fmt.Errorf("%w: empty reference", ErrUnsupported)
	}
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(src)
		if err != nil || u.Host == "" {
			return Ref{}, fmt.Errorf("%w: bad url %q", ErrUnsupported, src)
		}
		return Ref{Kind: KindHTTP, URL: u.String()}, nil
	case strings.HasPrefix(lower, "gs://"):
		bucket, object, ok := strings.Cut(src[len("gs://"):], "/")
		if !ok || bucket == "" || object == "" {
			return Ref{}, fmt.Errorf("%w: expected gs://bucket/object, got %q", ErrUnsupported, src)
		}
		return Ref{Kind: KindGCS, Bucket: bucket, Object: object}, nil
	case strings.HasPrefix(lower, "file://"):
		return Ref{Kind: KindFile, Path: src[len("file://"):]}, nil
	case strings.Contains(src, "://"):
		return Ref{}, fmt.Errorf("%w: %q", ErrUnsupported, src)
	}
	return Ref{Kind: KindFile, Path: src}, nil
}

// Fetcher reads archives from any supported source.
type Fetcher struct {
	MaxBytes   int64
	HTTPClient *http.Client

	gcsOpts []option.ClientOption

	gcsOnce sync.Once
	gcs     *storage.Client
	gcsErr  error
}

// NewFetcher returns a fetcher with the given size limit and HTTP timeout.
func NewFetcher(maxBytes int64, timeout time.Duration, gcsOpts ...option.ClientOption) *Fetcher {
	if len(gcsOpts) == 0 {
		gcsOpts = ClientOptionsFromEnv()
	}
	return &Fetcher{
		MaxBytes:   maxBytes,
		HTTPClient: &http.Client{Timeout: timeout},
		gcsOpts:    gcsOpts,
	}
}

// ClientOptionsFromEnv picks up service account credentials the way the
// Google client libraries document them.
func ClientOptionsFromEnv() []option.ClientOption {
	if host := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")); host != "" {
		return []option.ClientOption{option.WithoutAuthentication()}
	}
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// Fetch reads the whole archive referenced by src.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	ref, err := Parse(src)
	if err != nil {
		return nil, err
	}
	switch ref.Kind {
	case KindHTTP:
		return f.fetchHTTP(ctx, ref.URL)
	case KindGCS:
		return f.fetchGCS(ctx, ref.Bucket, ref.Object)
	default:
		return f.fetchFile(ref.Path)
	}
}

func (f *Fetcher) fetchFile(path string) ([]byte, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	if st, err := fh.Stat(); err == nil {
		if st.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		if f.MaxBytes > 0 && st.Size() > f.MaxBytes {
			return nil, ErrTooLarge
		}
	}
	return f.readLimited(fh)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/zip, application/octet-stream;q=0.9, */*;q=0.5")

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", u, resp.Status)
	}
	if f.MaxBytes > 0 && resp.ContentLength > f.MaxBytes {
		return nil, ErrTooLarge
	}
	return f.readLimited(resp.Body)
}

func (f *Fetcher) client(ctx context.Context) (*storage.Client, error) {
	f.gcsOnce.Do(func() {
		f.gcs, f.gcsErr = storage.NewClient(ctx, f.gcsOpts...)
		if f.gcsErr == nil {
			log.Debugf("cloud storage client ready")
		}
	})
	return f.gcs, f.gcsErr
}

func (f *Fetcher) fetchGCS(ctx context.Context, bucket, object string) ([]byte, error) {
	c, err := f.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud storage client: %w", err)
	}
	obj := c.Bucket(bucket).Object(object)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, object, err)
	}
	if f.MaxBytes > 0 && attrs.Size > f.MaxBytes {
		return nil, ErrTooLarge
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	return f.readLimited(r)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, f.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > f.MaxBytes {
		return nil, ErrTooLarge
	}
	return b, nil
}

// Close releases the cloud storage client, if one was created.
func (f *Fetcher) Close() error {
	if f.gcs != nil {
		return f.gcs.Close()
	}
	return nil
}
