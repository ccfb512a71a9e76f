// Package s3remote keeps the remote copy of the items in an S3 bucket, one
// object per item under an optional key prefix. Retrieve and deploy complete
// synchronously, so no polling is involved.
package s3remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/openmined/forcesync/internal/archive"
	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/remote"
	"golang.org/x/sync/errgroup"
)

var ErrNoBucket = errors.New("s3remote: bucket missing")

const defaultConcurrency = 8

type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint points at an S3 compatible store, path style addressing is used with it.
	Endpoint    string
	Concurrency int
}

func (c *Config) Validate() error {
	if c.Bucket == "" {
		return ErrNoBucket
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	c.Prefix = strings.Trim(c.Prefix, "/")
	return nil
}

// s3API is the part of *s3.Client used here.
type s3API interface {
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Client struct {
	cfg Config
	api s3API

	mu        sync.RWMutex
	connected bool
}

var _ remote.Service = (*Client)(nil)

// New builds a client from static credentials, or the default AWS credential chain when none are set.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          cfg.Concurrency * 2,
				MaxIdleConnsPerHost:   cfg.Concurrency,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ForceAttemptHTTP2:     true,
			},
			Timeout: 30 * time.Second,
		}),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3remote: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newWithAPI(api, cfg), nil
}

func newWithAPI(api s3API, cfg Config) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Client{cfg: cfg, api: api}
}

// Connect checks that the bucket is reachable.
func (c *Client) Connect(ctx context.Context) (*remote.Session, error) {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.cfg.Bucket}); err != nil {
		return nil, fmt.Errorf("s3remote: head bucket %s: %w", c.cfg.Bucket, err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	user := c.cfg.AccessKey
	if user == "" {
		user = "default"
	}
	session := &remote.Session{UserName: user, InstanceURL: c.location()}
	slog.Info("remote connected", "bucket", c.cfg.Bucket, "prefix", c.cfg.Prefix)
	return session, nil
}

func (c *Client) ensureConnected() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return remote.ErrNotConnected
	}
	return nil
}

func (c *Client) location() string {
	if c.cfg.Prefix == "" {
		return "s3://" + c.cfg.Bucket
	}
	return "s3://" + c.cfg.Bucket + "/" + c.cfg.Prefix
}

func (c *Client) objectKey(relPath string) string {
	if c.cfg.Prefix == "" {
		return relPath
	}
	return c.cfg.Prefix + "/" + relPath
}

func (c *Client) relPath(key string) (string, bool) {
	if c.cfg.Prefix == "" {
		return key, key != ""
	}
	rel, ok := strings.CutPrefix(key, c.cfg.Prefix+"/")
	return rel, ok && rel != ""
}

// selected reports whether desc selects the item at relPath. Sidecars follow their item.
func selected(desc *manifest.Descriptor, relPath string) bool {
	if manifest.IsSidecar(relPath) {
		relPath = relPath[:len(relPath)-len(manifest.MetaSuffix)]
	}
	t, member, ok := manifest.TypeForPath(relPath)
	return ok && desc.Includes(t.Name, member)
}

type remoteObject struct {
	relPath      string
	lastModified time.Time
}

// Retrieve downloads every object desc selects into an archive.
func (c *Client) Retrieve(ctx context.Context, desc *manifest.Descriptor) (*remote.RetrieveResult, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}
	if desc == nil {
		desc = manifest.Default("")
	}

	var objects []remoteObject
	input := &s3.ListObjectsV2Input{Bucket: &c.cfg.Bucket}
	if c.cfg.Prefix != "" {
		input.Prefix = aws.String(c.cfg.Prefix + "/")
	}
	pager := s3.NewListObjectsV2Paginator(c.api, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3remote: list: %w", err)
		}
		for _, obj := range page.Contents {
			rel, ok := c.relPath(aws.ToString(obj.Key))
			if !ok || !selected(desc, rel) {
				continue
			}
			objects = append(objects, remoteObject{relPath: rel, lastModified: aws.ToTime(obj.LastModified)})
		}
	}

	entries := make([]archive.Entry, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, obj := range objects {
		g.Go(func() error {
			data, err := c.getObject(gctx, c.objectKey(obj.relPath))
			if err != nil {
				return err
			}
			entries[i] = archive.Entry{Path: archive.Rooted(obj.relPath), Data: data, ModTime: obj.lastModified}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifestXML, err := desc.ToXML()
	if err != nil {
		return nil, err
	}
	entries = append(entries, archive.Entry{Path: archive.Rooted(manifest.FileName), Data: manifestXML})

	data, err := archive.Build(entries)
	if err != nil {
		return nil, err
	}

	result := &remote.RetrieveResult{
		ID:             uuid.NewString(),
		ZipFile:        archive.EncodeBase64(data),
		FileProperties: make([]remote.FileProperties, 0, len(objects)),
	}
	for _, obj := range objects {
		fp := remote.FileProperties{
			FileName:         archive.Rooted(obj.relPath),
			LastModifiedDate: obj.lastModified,
		}
		if t, member, ok := manifest.TypeForPath(obj.relPath); ok {
			fp.FullName = member
			fp.Type = t.Name
		}
		result.FileProperties = append(result.FileProperties, fp)
	}

	slog.Info("retrieve", "bucket", c.cfg.Bucket, "objects", len(objects))
	return result, nil
}

func (c *Client) getObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.cfg.Bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("s3remote: get %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3remote: read %s: %w", key, err)
	}
	return data, nil
}

// Deploy uploads every archive entry except the manifest as an object. Each
// entry is reported in the result details; any failed upload fails the deploy.
func (c *Client) Deploy(ctx context.Context, data []byte) (*remote.DeployResult, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	entries, err := archive.Read(data)
	if err != nil {
		return nil, err
	}

	var uploads []archive.Entry
	for _, e := range entries {
		rel, ok := archive.Unroot(e.Path)
		if !ok || rel == manifest.FileName {
			continue
		}
		e.Path = rel
		uploads = append(uploads, e)
	}

	details := make([]remote.DeployMessage, len(uploads))
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for i, e := range uploads {
		g.Go(func() error {
			key := c.objectKey(e.Path)
			_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
				Bucket:        &c.cfg.Bucket,
				Key:           &key,
				Body:          bytes.NewReader(e.Data),
				ContentLength: aws.Int64(int64(len(e.Data))),
			})
			details[i] = remote.DeployMessage{FileName: e.Path, Success: err == nil}
			if err != nil {
				details[i].Problem = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &remote.DeployResult{ID: uuid.NewString(), Status: "Succeeded", Success: true, Details: details}
	if failures := result.Failures(); len(failures) > 0 {
		result.Status = "Failed"
		result.Success = false
		return result, &remote.JobError{ID: result.ID, Status: result.Status, Reason: failures[0].FileName + ": " + failures[0].Problem}
	}

	slog.Info("deploy", "bucket", c.cfg.Bucket, "objects", len(uploads))
	return result, nil
}
