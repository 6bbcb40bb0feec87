// Package mbswift wraps the production Swift client BackupPipeline uses
// to read media objects out of MediaWiki's
// existing object store (spec section 4.8 step 1). Grounded in
// github.com/ncw/swift/v2's real client surface, the only Swift SDK
// present anywhere in the retrieved corpus.
package mbswift

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ncw/swift/v2"
	uploerrors "github.com/uplo-tech/errors"
	"github.com/uplo-tech/ratelimit"

	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// Downloader fetches production objects from Swift, rate-limited the
// same way BackupStore rate-limits its own S3 transport: the dialed
// net.Conn is wrapped with ratelimit.NewRLConn.
type Downloader struct {
	conn *swift.Connection
	rl   *ratelimit.RateLimit
	stop chan struct{}
}

// New authenticates against authURL with user/key and returns a ready
// Downloader.
func New(ctx context.Context, authURL, user, key string, maxBytesPerSecond int64) (*Downloader, error) {
	d := &Downloader{
		rl:   ratelimit.NewRateLimit(maxBytesPerSecond, 0, 0),
		stop: make(chan struct{}),
	}
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn := &swift.Connection{
		UserName: user,
		ApiKey:   key,
		AuthUrl:  authURL,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				c, err := dialer.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				return ratelimit.NewRLConn(c, d.rl, d.stop), nil
			},
			MaxIdleConnsPerHost: 8,
		},
	}
	if err := conn.Authenticate(ctx); err != nil {
		return nil, uploerrors.AddContext(err, "mbswift: authentication failed")
	}
	d.conn = conn
	return d, nil
}

// Close stops this Downloader's rate-limit bookkeeping.
func (d *Downloader) Close() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
}

// Download reads container/path from production Swift into localPath.
func (d *Downloader) Download(ctx context.Context, container, path, localPath string) error {
	rc, _, err := d.conn.ObjectOpen(ctx, container, path, false, nil)
	if err != nil {
		return uploerrors.Extend(err, mberrors.ErrDownload)
	}
	defer rc.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return uploerrors.Extend(err, mberrors.ErrDownload)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return uploerrors.Extend(err, mberrors.ErrDownload)
	}
	return nil
}
