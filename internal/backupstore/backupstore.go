// Package backupstore is a thin, content-addressed wrapper over an
// S3-compatible object store (spec section 4.5). No retry lives here;
// BackupPipeline decides when to retry.
package backupstore

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	uploerrors "github.com/uplo-tech/errors"
	"github.com/uplo-tech/monitor"
	"github.com/uplo-tech/ratelimit"

	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// Store is a sharded set of S3-compatible clients, one per configured
// endpoint, addressed by content hash.
type Store struct {
	bucket    string
	endpoints []string
	clients   []*s3.Client
	rl        *ratelimit.RateLimit
	bw        *monitor.Monitor
	stop      chan struct{}
}

// Options configures New.
type Options struct {
	Bucket                    string
	Endpoints                 []string
	AccessKeyID, SecretKey    string
	MaxDownloadBytesPerSecond int64
	MaxUploadBytesPerSecond   int64
}

// New opens one S3-compatible client per endpoint URL, in order; the
// order determines shard assignment (see Shard). All clients dial
// through the same rate-limited, bandwidth-monitored transport, the way
// the teacher's gateway wraps accepted connections with its RateLimit
// and Monitor.
func New(ctx context.Context, opts Options) (*Store, error) {
	if len(opts.Endpoints) == 0 {
		return nil, uploerrors.AddContext(mberrors.ErrConfig, "backupstore: at least one endpoint is required")
	}
	st := &Store{
		bucket:    opts.Bucket,
		endpoints: append([]string(nil), opts.Endpoints...),
		rl:        ratelimit.NewRateLimit(opts.MaxDownloadBytesPerSecond, opts.MaxUploadBytesPerSecond, 0),
		bw:        monitor.NewMonitor(),
		stop:      make(chan struct{}),
	}
	httpClient := &http.Client{Transport: st.transport()}

	for _, endpoint := range opts.Endpoints {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, "")),
			awsconfig.WithRegion("us-east-1"),
			awsconfig.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, uploerrors.AddContext(err, "backupstore: unable to load AWS config")
		}
		client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(endpoint)
		})
		st.clients = append(st.clients, client)
	}
	return st, nil
}

// Close stops background rate-limit/monitor bookkeeping tied to this
// store's connections.
func (s *Store) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// transport returns an *http.Transport whose dialed connections are
// wrapped with the store's RateLimit and Monitor, the same pattern the
// teacher's gateway applies to every accepted peer connection.
func (s *Store) transport() *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			conn = ratelimit.NewRLConn(conn, s.rl, s.stop)
			conn = s.bw.Monitor(conn)
			return conn, nil
		},
		MaxIdleConnsPerHost: 8,
	}
}

// Shard returns the 1-based location id for key: the first hex character
// of the key's last path component (without a trailing .age), integer-
// divided by N (number of endpoints), plus 1. digit/N ranges over
// 0..15/N, which is exactly 0..N-1 only when N is 4; an id above N has
// no configured endpoint.
func (s *Store) Shard(key string) (int, error) {
	leaf := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		leaf = key[idx+1:]
	}
	leaf = strings.TrimSuffix(leaf, ".age")
	if leaf == "" {
		return 0, goerrors.New("backupstore: key has no leaf component")
	}
	digit, err := strconv.ParseInt(string(leaf[0]), 16, 64)
	if err != nil {
		return 0, uploerrors.AddContext(err, "backupstore: leaf does not start with a hex digit")
	}
	n := int64(len(s.clients))
	return int(digit/n) + 1, nil
}

func (s *Store) clientForKey(key string) (*s3.Client, int, error) {
	shard, err := s.Shard(key)
	if err != nil {
		return nil, 0, err
	}
	idx := shard - 1
	if idx < 0 || idx >= len(s.clients) {
		return nil, 0, fmt.Errorf("backupstore: shard %d out of range", shard)
	}
	return s.clients[idx], shard, nil
}

func (s *Store) clientForEndpoint(endpoint string) (*s3.Client, bool) {
	for i, e := range s.endpoints {
		if e == endpoint {
			return s.clients[i], true
		}
	}
	return nil, false
}

func (s *Store) resolveClient(key, endpoint string) (*s3.Client, error) {
	if endpoint != "" {
		client, ok := s.clientForEndpoint(endpoint)
		if !ok {
			return nil, fmt.Errorf("backupstore: unknown endpoint %q", endpoint)
		}
		return client, nil
	}
	client, _, err := s.clientForKey(key)
	return client, err
}

// Exists performs a HEAD on key. If endpoint is empty, the shard implied
// by key is used. Returns (true, nil) on 2xx, (false, nil) on 404, and a
// non-nil error on any other failure.
func (s *Store) Exists(ctx context.Context, key, endpoint string) (bool, error) {
	client, err := s.resolveClient(key, endpoint)
	if err != nil {
		return false, err
	}
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, uploerrors.AddContext(err, "backupstore: HEAD failed")
}

func isNotFound(err error) bool {
	var re *smithyhttp.ResponseError
	if goerrors.As(err, &re) {
		return re.HTTPStatusCode() == http.StatusNotFound
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

// Put uploads the file at localPath to key, returning the 1-based
// location id on success or -1 on error, matching the reference
// implementation's sentinel-return contract (callers map this directly
// to a pipeline Outcome).
func (s *Store) Put(ctx context.Context, localPath, key string) int {
	client, shard, err := s.clientForKey(key)
	if err != nil {
		return -1
	}
	f, err := os.Open(localPath)
	if err != nil {
		return -1
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return -1
	}
	return shard
}

// Get downloads key from endpoint into localPath, returning 0 on success
// or -1 on error.
func (s *Store) Get(ctx context.Context, endpoint, key, localPath string) int {
	client, err := s.resolveClient(key, endpoint)
	if err != nil {
		return -1
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return -1
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return -1
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return -1
	}
	return 0
}

// Delete removes key from endpoint, returning 0 on success or -1 on
// error. Deleting an already-absent key is not an error (idempotent).
func (s *Store) Delete(ctx context.Context, endpoint, key string) int {
	client, err := s.resolveClient(key, endpoint)
	if err != nil {
		return -1
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil && !isNotFound(err) {
		return -1
	}
	return 0
}

// Endpoint returns the endpoint URL for a 1-based location id.
func (s *Store) Endpoint(location int) (string, bool) {
	idx := location - 1
	if idx < 0 || idx >= len(s.endpoints) {
		return "", false
	}
	return s.endpoints[idx], true
}
