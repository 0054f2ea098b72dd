package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"azvm/internal/config"
	"azvm/internal/naming"
)

// ErrRunNotFound is returned when no record exists for a run ID.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageRecord tracks one stage of a run
type StageRecord struct {
	Name       string      `json:"name" yaml:"name"`
	Status     StageStatus `json:"status" yaml:"status"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorClass string      `json:"error_class,omitempty" yaml:"error_class,omitempty"`
	StartedAt  time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// RunRecord is what a run created and how far it got. A failed run leaves
// its resources in place; the record is how an operator finds them.
type RunRecord struct {
	ID                 string        `json:"id" yaml:"id"`
	StartedAt          time.Time     `json:"started_at" yaml:"started_at"`
	UpdatedAt          time.Time     `json:"updated_at" yaml:"updated_at"`
	ResourceGroup      string        `json:"resource_group" yaml:"resource_group"`
	Suffix             string        `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Names              naming.Names  `json:"names" yaml:"names"`
	PublicAddressID    string        `json:"public_address_id,omitempty" yaml:"public_address_id,omitempty"`
	PublicAddress      string        `json:"public_address,omitempty" yaml:"public_address,omitempty"`
	NetworkInterfaceID string        `json:"network_interface_id,omitempty" yaml:"network_interface_id,omitempty"`
	PrivateAddress     string        `json:"private_address,omitempty" yaml:"private_address,omitempty"`
	VirtualMachineID   string        `json:"virtual_machine_id,omitempty" yaml:"virtual_machine_id,omitempty"`
	PowerState         string        `json:"power_state,omitempty" yaml:"power_state,omitempty"`
	Stages             []StageRecord `json:"stages" yaml:"stages"`
	Status             RunStatus     `json:"status" yaml:"status"`
	Error              string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewRun creates a record in the running state
func NewRun(id, resourceGroup string, now time.Time) *RunRecord {
	return &RunRecord{
		ID:            id,
		StartedAt:     now,
		UpdatedAt:     now,
		ResourceGroup: resourceGroup,
		Status:        RunRunning,
	}
}

// StartStage appends a running stage
func (r *RunRecord) StartStage(name string, now time.Time) {
	r.Stages = append(r.Stages, StageRecord{Name: name, Status: StageRunning, StartedAt: now})
	r.UpdatedAt = now
}

// FinishStage closes the most recent entry for name. A nil err marks it
// succeeded; otherwise failed with the error text and class.
func (r *RunRecord) FinishStage(name string, err error, class string, now time.Time) {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Name != name {
			continue
		}
		r.Stages[i].FinishedAt = now
		if err != nil {
			r.Stages[i].Status = StageFailed
			r.Stages[i].Error = err.Error()
			r.Stages[i].ErrorClass = class
		} else {
			r.Stages[i].Status = StageSucceeded
		}
		break
	}
	r.UpdatedAt = now
}

// SkipStage records a stage that was not run
func (r *RunRecord) SkipStage(name string, now time.Time) {
	r.Stages = append(r.Stages, StageRecord{Name: name, Status: StageSkipped, StartedAt: now, FinishedAt: now})
	r.UpdatedAt = now
}

// Stage returns the most recent entry for name
func (r *RunRecord) Stage(name string) (StageRecord, bool) {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Name == name {
			return r.Stages[i], true
		}
	}
	return StageRecord{}, false
}

// Finish sets the final status of the run
func (r *RunRecord) Finish(err error, now time.Time) {
	if err != nil {
		r.Status = RunFailed
		r.Error = err.Error()
	} else {
		r.Status = RunSucceeded
		r.Error = ""
	}
	r.UpdatedAt = now
}

// Store persists run records
type Store interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context) ([]*RunRecord, error)
	Close() error
}

// NewStore opens the backend selected in cfg
func NewStore(cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case config.StateBackendFile, "":
		return NewFileStore(cfg.Path), nil
	case config.StateBackendEtcd:
		return NewEtcdStore(cfg.EtcdEndpoints, cfg.DialTimeout)
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", cfg.Backend)
	}
}

// Latest returns the most recently started run
func Latest(ctx context.Context, store Store) (*RunRecord, error) {
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return runs[len(runs)-1], nil
}

func sortRuns(runs []*RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
}

// State is the on-disk layout of the file backend
type State struct {
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Runs      map[string]*RunRecord `json:"runs"`
}

// New creates a new empty state
func New() *State {
	return &State{
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Runs:      make(map[string]*RunRecord),
	}
}

// Load loads the state from a file
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Runs == nil {
		state.Runs = make(map[string]*RunRecord)
	}

	return &state, nil
}

// Save saves the state to a file
func (s *State) Save(path string) error {
	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return os.Rename(tmp, path)
}

// FileStore keeps every run in one JSON file
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) load() (*State, error) {
	s, err := Load(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return s, err
}

// SaveRun inserts or replaces a run
func (fs *FileStore) SaveRun(ctx context.Context, run *RunRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	s, err := fs.load()
	if err != nil {
		return err
	}
	cp := *run
	cp.Stages = append([]StageRecord(nil), run.Stages...)
	s.Runs[run.ID] = &cp
	return s.Save(fs.path)
}

// GetRun returns a copy of a stored run
func (fs *FileStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	s, err := fs.load()
	if err != nil {
		return nil, err
	}
	run, ok := s.Runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// ListRuns returns every run, oldest first
func (fs *FileStore) ListRuns(ctx context.Context) ([]*RunRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	s, err := fs.load()
	if err != nil {
		return nil, err
	}
	runs := make([]*RunRecord, 0, len(s.Runs))
	for _, run := range s.Runs {
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

// Close is a no-op for the file backend
func (fs *FileStore) Close() error { return nil }
