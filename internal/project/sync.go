package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/openmined/forcesync/internal/archive"
	"github.com/openmined/forcesync/internal/changelog"
	"github.com/openmined/forcesync/internal/history"
	"github.com/openmined/forcesync/internal/packager"
	"github.com/openmined/forcesync/internal/remote"
	"github.com/openmined/forcesync/internal/utils"
)

type PushResult struct {
	RunID string
	// Items are the keys of the items sent.
	Items []string
	// Size of the deployed archive in bytes.
	Size           int
	NothingChanged bool
	Deploy         *remote.DeployResult
}

type PullResult struct {
	RunID      string
	RetrieveID string
	Results    []packager.Result
	Summary    packager.Summary
}

// Init sets up a new project and pulls when the config asks for it. An
// existing project is always pulled. The result is nil when nothing was pulled.
func (p *Project) Init(ctx context.Context, svc remote.Service) (*PullResult, error) {
	if p.IsNew() {
		if err := p.Setup(); err != nil {
			return nil, err
		}
		if !p.cfg.PullOnInit {
			return nil, nil
		}
	}
	return p.Pull(ctx, svc)
}

// Push deploys the items changed since the last sync. Nothing is sent, and no
// error returned, when nothing changed. When the deploy fails the recorded
// remote state is rolled back so the items are sent again next time; a deploy
// the remote rejected returns its result along with the error.
func (p *Project) Push(ctx context.Context, svc remote.Service) (*PushResult, error) {
	if !p.muSync.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer p.muSync.Unlock()

	if err := p.open(); err != nil {
		return nil, err
	}

	run := history.NewRun(history.DirectionPush)
	defer p.record(run)

	out, err := p.packager.Compress(ctx)
	if errors.Is(err, packager.ErrNothingChanged) {
		slog.Info("push nothing changed")
		run.Status = history.StatusNothingChanged
		return &PushResult{RunID: run.ID, NothingChanged: true}, nil
	}
	if err != nil {
		return nil, run.Fail(fmt.Errorf("compress: %w", err))
	}

	result := &PushResult{RunID: run.ID, Items: out.Items, Size: out.Size()}
	run.Items = len(out.Items)

	deploy, err := p.deploy(ctx, svc, out.Archive)
	result.Deploy = deploy
	if deploy != nil {
		run.JobID = deploy.ID
	}
	if err != nil {
		if revertErr := out.Revert(); revertErr != nil {
			slog.Error("push revert", "error", revertErr)
			err = errors.Join(err, revertErr)
		}
		return result, run.Fail(fmt.Errorf("deploy: %w", err))
	}

	run.Applied = len(out.Items)
	run.Status = history.StatusOK
	slog.Info("push", "items", len(out.Items), "deploy", deploy.ID)
	return result, nil
}

func (p *Project) deploy(ctx context.Context, svc remote.Service, data []byte) (*remote.DeployResult, error) {
	if _, err := svc.Connect(ctx); err != nil {
		return nil, err
	}
	return svc.Deploy(ctx, data)
}

// Pull retrieves the items the manifest selects and reconciles them into the
// source folder. Conflicting or failed items do not fail the pull; they are
// reported in the results.
func (p *Project) Pull(ctx context.Context, svc remote.Service) (*PullResult, error) {
	if !p.muSync.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer p.muSync.Unlock()

	if err := p.open(); err != nil {
		return nil, err
	}

	run := history.NewRun(history.DirectionPull)
	defer p.record(run)

	desc, err := p.Descriptor()
	if err != nil {
		return nil, run.Fail(fmt.Errorf("manifest: %w", err))
	}

	if _, err := svc.Connect(ctx); err != nil {
		return nil, run.Fail(err)
	}

	retrieved, err := svc.Retrieve(ctx, desc)
	if err != nil {
		return nil, run.Fail(fmt.Errorf("retrieve: %w", err))
	}
	run.JobID = retrieved.ID

	data, err := archive.DecodeBase64(retrieved.ZipFile)
	if err != nil {
		return nil, run.Fail(err)
	}

	results, err := p.packager.Extract(ctx, data, retrieved.ModTimes())
	if err != nil {
		return nil, run.Fail(fmt.Errorf("extract: %w", err))
	}

	summary := packager.Summarize(results)
	run.Items = len(results)
	run.Applied = summary.Applied
	run.Skipped = summary.Skipped
	run.Conflicts = summary.Conflicts
	run.Failed = summary.Failed
	run.Status = history.StatusOK
	if summary.Conflicts > 0 || summary.Failed > 0 {
		run.Status = history.StatusPartial
	}

	return &PullResult{RunID: run.ID, RetrieveID: retrieved.ID, Results: results, Summary: summary}, nil
}

func (p *Project) record(run *history.Run) {
	run.Duration = time.Since(run.StartedAt)
	if run.Status == "" {
		run.Status = history.StatusFailed
	}
	if p.history == nil {
		return
	}
	if err := p.history.Record(run); err != nil {
		slog.Warn("history record", "error", err)
	}
}

// ItemState is the sync state of one tracked item.
type ItemState struct {
	Key        string `json:"key" yaml:"key"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	State      string `json:"state" yaml:"state"`
	Changed    bool   `json:"changed" yaml:"changed"`
	LocalHash  string `json:"localHash,omitempty" yaml:"localHash,omitempty"`
	RemoteHash string `json:"remoteHash,omitempty" yaml:"remoteHash,omitempty"`
}

// StateMissing marks a tracked item whose local file is gone.
const StateMissing = "missing"

// Status compares every item on disk against the last known remote state
// without recording anything. Tracked items missing on disk are listed too.
func (p *Project) Status(ctx context.Context) ([]ItemState, error) {
	if !p.muSync.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer p.muSync.Unlock()

	if err := p.open(); err != nil {
		return nil, err
	}

	var states []ItemState
	seen := make(map[string]bool)

	for item, err := range p.packager.Walk() {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if packager.IsUntracked(item.RelPath) {
			continue
		}

		hash, err := utils.FileHash(item.Path)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", item.RelPath, err)
		}

		local := changelog.NewState(hash, item.Info.ModTime())
		entry := &changelog.Entry{Local: &local}
		if recorded := p.store.Get(item.Key); recorded != nil {
			entry.Remote = recorded.Remote
		}

		state := ItemState{
			Key:       item.Key,
			Path:      item.RelPath,
			State:     entry.Side().String(),
			Changed:   entry.HasChanged(),
			LocalHash: hash,
		}
		if entry.Remote != nil {
			state.RemoteHash = entry.Remote.Hash
		}
		states = append(states, state)
		seen[item.Key] = true
	}

	for _, key := range p.store.Keys() {
		if seen[key] {
			continue
		}
		state := ItemState{Key: key, State: StateMissing, Changed: true}
		if entry := p.store.Get(key); entry != nil && entry.Remote != nil {
			state.RemoteHash = entry.Remote.Hash
		}
		states = append(states, state)
	}

	slices.SortFunc(states, func(a, b ItemState) int { return strings.Compare(a.Key, b.Key) })
	return states, nil
}

// History returns up to limit recent runs, newest first.
func (p *Project) History(limit int) ([]*history.Run, error) {
	if err := p.open(); err != nil {
		return nil, err
	}
	return p.history.Recent(limit)
}
