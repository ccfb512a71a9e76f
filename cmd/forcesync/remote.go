package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/remote"
	"github.com/openmined/forcesync/internal/remote/httpremote"
	"github.com/openmined/forcesync/internal/remote/s3remote"
	"github.com/spf13/viper"
)

const (
	remoteHTTP = "http"
	remoteS3   = "s3"
)

func httpConfig(v *viper.Viper) httpremote.Config {
	return httpremote.Config{
		ServerURL:  v.GetString("server_url"),
		Username:   v.GetString("username"),
		Password:   v.GetString("password"),
		Token:      v.GetString("token"),
		APIVersion: v.GetString("api_version"),
	}
}

func s3Config(v *viper.Viper) s3remote.Config {
	return s3remote.Config{
		Bucket:    v.GetString("bucket"),
		Prefix:    v.GetString("prefix"),
		Region:    v.GetString("region"),
		AccessKey: v.GetString("access_key"),
		SecretKey: v.GetString("secret_key"),
		Endpoint:  v.GetString("endpoint"),
	}
}

func newRemote(ctx context.Context, v *viper.Viper) (remote.Service, error) {
	switch kind := v.GetString("remote"); kind {
	case remoteHTTP, "":
		client, err := httpremote.New(httpConfig(v))
		if err != nil {
			return nil, err
		}
		return client, nil
	case remoteS3:
		client, err := s3remote.New(ctx, s3Config(v))
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown remote %q, want %s or %s", kind, remoteHTTP, remoteS3)
	}
}

// lazyRemote builds the configured remote on first Connect, so commands that
// end up not talking to the remote never need its credentials.
type lazyRemote struct {
	build func(ctx context.Context) (remote.Service, error)

	mu  sync.Mutex
	svc remote.Service
}

func (l *lazyRemote) Connect(ctx context.Context) (*remote.Session, error) {
	l.mu.Lock()
	if l.svc == nil {
		svc, err := l.build(ctx)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		l.svc = svc
	}
	svc := l.svc
	l.mu.Unlock()

	return svc.Connect(ctx)
}

func (l *lazyRemote) service() (remote.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.svc == nil {
		return nil, remote.ErrNotConnected
	}
	return l.svc, nil
}

func (l *lazyRemote) Retrieve(ctx context.Context, desc *manifest.Descriptor) (*remote.RetrieveResult, error) {
	svc, err := l.service()
	if err != nil {
		return nil, err
	}
	return svc.Retrieve(ctx, desc)
}

func (l *lazyRemote) Deploy(ctx context.Context, archive []byte) (*remote.DeployResult, error) {
	svc, err := l.service()
	if err != nil {
		return nil, err
	}
	return svc.Deploy(ctx, archive)
}

func (c *cli) remote() *lazyRemote {
	return &lazyRemote{build: func(ctx context.Context) (remote.Service, error) {
		return newRemote(ctx, c.v)
	}}
}
