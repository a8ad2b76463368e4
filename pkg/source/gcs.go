package source

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ja7ad/joulemeter/pkg/timeseries"
)

// GCS reads the measurement streams from a Google Cloud Storage bucket,
// for runs where the sampling agents upload their stats directory after
// the workload finishes. Objects may be stored gzipped with a .gz
// suffix. Credentials come from the ambient application-default chain.
type GCS struct {
	Bucket string
	Prefix string // object prefix, usually the uploaded run directory

	// PowerObject and IOObject override the default object names
	// (resolved under Prefix).
	PowerObject string
	IOObject    string

	// ClientOptions passes extra options to the storage client, letting
	// tests and private deployments point at another endpoint. Empty
	// keeps the application-default chain.
	ClientOptions []option.ClientOption
}

var (
	_ PowerLog = GCS{}
	_ IOLog    = GCS{}
)

func (g GCS) PowerRecords(ctx context.Context) ([]timeseries.PowerSample, error) {
	rc, err := g.open(ctx, g.PowerObject, PowerLogName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParsePowerLog(rc)
}

func (g GCS) IOEvents(ctx context.Context) ([]timeseries.IOEvent, error) {
	rc, err := g.open(ctx, g.IOObject, IOLogName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParseIOLog(rc)
}

func (g GCS) open(ctx context.Context, name, fallback string) (io.ReadCloser, error) {
	if name == "" {
		name = fallback
	}
	object := name
	if g.Prefix != "" {
		object = path.Join(g.Prefix, name)
	}

	client, err := storage.NewClient(ctx, g.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("source: gcs client: %w", err)
	}

	rc, gz, err := g.openObject(ctx, client, object)
	if err != nil {
		client.Close()
		return nil, err
	}
	if !gz {
		return &readCloser{Reader: rc, closers: []io.Closer{rc, client}}, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		client.Close()
		return nil, fmt.Errorf("source: gunzip gs://%s/%s: %w", g.Bucket, object, err)
	}
	return &readCloser{Reader: zr, closers: []io.Closer{zr, rc, client}}, nil
}

// openObject opens the object, falling back to its gzipped twin, and
// reports whether the stream needs decompression.
func (g GCS) openObject(ctx context.Context, client *storage.Client, object string) (*storage.Reader, bool, error) {
	bkt := client.Bucket(g.Bucket)

	rc, err := bkt.Object(object).NewReader(ctx)
	if err == nil {
		return rc, strings.HasSuffix(object, ".gz"), nil
	}
	if twin, twinErr := bkt.Object(object + ".gz").NewReader(ctx); twinErr == nil {
		return twin, true, nil
	}
	return nil, false, fmt.Errorf("source: gcs open gs://%s/%s: %w", g.Bucket, object, err)
}
