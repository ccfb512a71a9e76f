// Package httpremote talks to a metadata gateway over HTTP. Retrieve and deploy
// are started as jobs on the gateway and polled until they finish.
package httpremote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/imroc/req/v3"
	"github.com/openmined/forcesync/internal/archive"
	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/remote"
	"github.com/openmined/forcesync/internal/utils"
	"github.com/openmined/forcesync/internal/version"
)

type Client struct {
	cfg    Config
	client *req.Client

	mu      sync.RWMutex
	session *remote.Session
	now     func() time.Time
}

var _ remote.Service = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := req.C().
		SetBaseURL(cfg.ServerURL).
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(1*time.Second).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonHeader(HeaderDeviceID, deviceID()).
		SetCommonErrorResult(&remote.APIError{}).
		SetJsonMarshal(utils.JSONMarshal).
		SetJsonUnmarshal(utils.JSONUnmarshal)

	return &Client{cfg: cfg, client: client, now: time.Now}, nil
}

// Connect opens a session with the configured credentials.
func (c *Client) Connect(ctx context.Context) (*remote.Session, error) {
	var sessResp sessionResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetBody(&sessionRequest{
			Username: c.cfg.Username,
			Password: c.cfg.Password,
			Token:    c.cfg.Token,
		}).
		SetSuccessResult(&sessResp).
		Post(v1Session)

	if err := handleAPIError(resp, err, "session"); err != nil {
		return nil, err
	}
	if sessResp.AccessToken == "" {
		return nil, fmt.Errorf("session: %w", remote.ErrNotConnected)
	}

	session := &remote.Session{
		UserName:    sessResp.UserName,
		InstanceURL: sessResp.InstanceURL,
		AccessToken: sessResp.AccessToken,
		ExpiresAt:   tokenExpiry(sessResp.AccessToken),
	}

	c.mu.Lock()
	c.session = session
	c.client.SetCommonBearerAuthToken(session.AccessToken)
	c.mu.Unlock()

	slog.Info("remote connected", "user", session.UserName, "instance", session.InstanceURL, "expires", session.ExpiresAt)
	return session, nil
}

// Session returns the current session, nil before Connect.
func (c *Client) Session() *remote.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) ensureSession(ctx context.Context) error {
	if !c.Session().Expired(c.now()) {
		return nil
	}
	slog.Debug("remote session missing or expired, reconnecting")
	_, err := c.Connect(ctx)
	return err
}

// Retrieve asks the gateway for the items desc selects and waits for the archive.
func (c *Client) Retrieve(ctx context.Context, desc *manifest.Descriptor) (*remote.RetrieveResult, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	var job jobResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&retrieveRequest{APIVersion: c.cfg.APIVersion, Manifest: desc}).
		SetSuccessResult(&job).
		Post(v1Retrieve)

	if err := handleAPIError(resp, err, "retrieve"); err != nil {
		return nil, err
	}
	slog.Debug("retrieve started", "id", job.ID)

	return remote.Poll(ctx, c.cfg.Poll, func(ctx context.Context) (*remote.RetrieveResult, bool, error) {
		var status retrieveStatus
		resp, err := c.client.R().
			SetContext(ctx).
			SetPathParam("id", job.ID).
			SetSuccessResult(&status).
			Get(v1RetrieveStatus)

		if err := handleAPIError(resp, err, "retrieve status"); err != nil {
			return nil, false, err
		}

		switch status.Status {
		case StatusSucceeded:
			result := status.RetrieveResult
			if result.ID == "" {
				result.ID = job.ID
			}
			return &result, true, nil
		case StatusFailed:
			return nil, false, &remote.JobError{ID: job.ID, Status: status.Status, Reason: status.Error}
		default:
			return nil, false, nil
		}
	})
}

// Deploy uploads an archive and waits for the gateway to apply it. A deploy the
// gateway rejects returns its result together with a *remote.JobError.
func (c *Client) Deploy(ctx context.Context, data []byte) (*remote.DeployResult, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	var job jobResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetBody(&deployRequest{APIVersion: c.cfg.APIVersion, ZipFile: archive.EncodeBase64(data)}).
		SetSuccessResult(&job).
		Post(v1Deploy)

	if err := handleAPIError(resp, err, "deploy"); err != nil {
		return nil, err
	}
	slog.Debug("deploy started", "id", job.ID)

	result, err := remote.Poll(ctx, c.cfg.Poll, func(ctx context.Context) (*remote.DeployResult, bool, error) {
		var status deployStatus
		resp, err := c.client.R().
			SetContext(ctx).
			SetPathParam("id", job.ID).
			SetSuccessResult(&status).
			Get(v1DeployStatus)

		if err := handleAPIError(resp, err, "deploy status"); err != nil {
			return nil, false, err
		}

		switch status.Status {
		case StatusSucceeded, StatusFailed:
			result := status.DeployResult
			if result.ID == "" {
				result.ID = job.ID
			}
			if status.Status == StatusFailed {
				result.Success = false
			}
			if !result.Success && status.Error != "" {
				result.Details = append(result.Details, remote.DeployMessage{Problem: status.Error})
			}
			return &result, true, nil
		default:
			return nil, false, nil
		}
	})
	if err != nil {
		return nil, err
	}

	if !result.Success {
		reason := ""
		if failures := result.Failures(); len(failures) > 0 {
			reason = failures[0].Problem
		}
		return result, &remote.JobError{ID: result.ID, Status: result.Status, Reason: reason}
	}
	return result, nil
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*remote.APIError); ok && apiErr.Code != "" {
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("%s: %w", operation, remote.NewAPIError(remote.CodeInternalError, resp.Status))
	}

	return nil
}

// tokenExpiry reads the exp claim of a JWT access token without verifying it.
// Opaque tokens have no known expiry.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func deviceID() string {
	id, err := machineid.ProtectedID(version.AppName)
	if err != nil {
		return "unknown"
	}
	return id
}
