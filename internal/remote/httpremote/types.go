package httpremote

import (
	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/remote"
)

const (
	v1Session        = "/api/v1/session"
	v1Retrieve       = "/api/v1/retrieve"
	v1RetrieveStatus = "/api/v1/retrieve/{id}"
	v1Deploy         = "/api/v1/deploy"
	v1DeployStatus   = "/api/v1/deploy/{id}"
)

const (
	HeaderVersion  = "X-Forcesync-Version"
	HeaderDeviceID = "X-Forcesync-Device-Id"
)

// job states reported by the gateway
const (
	StatusPending    = "Pending"
	StatusInProgress = "InProgress"
	StatusSucceeded  = "Succeeded"
	StatusFailed     = "Failed"
)

type sessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token,omitempty"`
}

type sessionResponse struct {
	AccessToken string `json:"accessToken"`
	InstanceURL string `json:"instanceUrl"`
	UserName    string `json:"userName"`
}

type retrieveRequest struct {
	APIVersion string               `json:"apiVersion"`
	Manifest   *manifest.Descriptor `json:"manifest"`
}

type deployRequest struct {
	APIVersion string `json:"apiVersion"`
	ZipFile    string `json:"zipFile"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type retrieveStatus struct {
	remote.RetrieveResult
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type deployStatus struct {
	remote.DeployResult
	Error string `json:"error,omitempty"`
}
