package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// RunKeyPrefix is the etcd key prefix for run records
const RunKeyPrefix = "/azvm/runs/"

// EtcdStore persists run records in etcd, one key per run
type EtcdStore struct {
	kv     clientv3.KV
	closer io.Closer
}

// NewEtcdStore connects to etcd
func NewEtcdStore(endpoints []string, dialTimeout time.Duration) (*EtcdStore, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &EtcdStore{kv: cli, closer: cli}, nil
}

func runKey(id string) string {
	return RunKeyPrefix + id
}

// Close closes the etcd client connection
func (es *EtcdStore) Close() error {
	if es.closer == nil {
		return nil
	}
	return es.closer.Close()
}

// SaveRun saves the run record
func (es *EtcdStore) SaveRun(ctx context.Context, run *RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	if _, err := es.kv.Put(ctx, runKey(run.ID), string(data)); err != nil {
		return fmt.Errorf("failed to save run record to etcd: %w", err)
	}
	return nil
}

// GetRun retrieves the run record
func (es *EtcdStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	resp, err := es.kv.Get(ctx, runKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get run record from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	var run RunRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
	}
	return &run, nil
}

// ListRuns returns every run, oldest first
func (es *EtcdStore) ListRuns(ctx context.Context) ([]*RunRecord, error) {
	resp, err := es.kv.Get(ctx, RunKeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list run records from etcd: %w", err)
	}
	runs := make([]*RunRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var run RunRecord
		if err := json.Unmarshal(kv.Value, &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run record %s: %w", kv.Key, err)
		}
		runs = append(runs, &run)
	}
	sortRuns(runs)
	return runs, nil
}
