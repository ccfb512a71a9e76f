// Package remote defines the capability the sync engine needs from the remote
// metadata store: open a session, retrieve the items a manifest selects as an
// archive, and deploy an archive.
package remote

import (
	"context"
	"path"
	"time"

	"github.com/openmined/forcesync/internal/manifest"
)

// Service is implemented by every remote backend. Retrieve and Deploy block
// until the remote job finishes, fails or ctx is done.
type Service interface {
	Connect(ctx context.Context) (*Session, error)
	Retrieve(ctx context.Context, desc *manifest.Descriptor) (*RetrieveResult, error)
	Deploy(ctx context.Context, archive []byte) (*DeployResult, error)
}

type Session struct {
	UserName    string    `json:"userName"`
	InstanceURL string    `json:"instanceUrl"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry. A zero expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// FileProperties describes one retrieved file as the remote sees it.
type FileProperties struct {
	FullName         string    `json:"fullName"`
	FileName         string    `json:"fileName"`
	Type             string    `json:"type"`
	LastModifiedDate time.Time `json:"lastModifiedDate"`
}

type RetrieveResult struct {
	ID string `json:"id"`
	// ZipFile is the base64 encoded archive.
	ZipFile        string           `json:"zipFile"`
	FileProperties []FileProperties `json:"fileProperties"`
}

// ModTimes maps item keys to their remote modification times. The key is the
// base name of the file name, or the full name when the file name is missing.
func (r *RetrieveResult) ModTimes() map[string]time.Time {
	times := make(map[string]time.Time, len(r.FileProperties))
	for _, fp := range r.FileProperties {
		if fp.LastModifiedDate.IsZero() {
			continue
		}
		key := fp.FullName
		if fp.FileName != "" {
			key = path.Base(fp.FileName)
		}
		if key == "" {
			continue
		}
		times[key] = fp.LastModifiedDate
	}
	return times
}

type DeployMessage struct {
	FileName string `json:"fileName"`
	Success  bool   `json:"success"`
	Problem  string `json:"problem,omitempty"`
}

type DeployResult struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Success bool            `json:"success"`
	Details []DeployMessage `json:"details,omitempty"`
}

// Failures lists the deploy messages that did not succeed.
func (r *DeployResult) Failures() []DeployMessage {
	var failed []DeployMessage
	for _, m := range r.Details {
		if !m.Success {
			failed = append(failed, m)
		}
	}
	return failed
}
