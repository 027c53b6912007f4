package modelcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
)

// JSONPersister writes each key as two files under dir:
// station_<key>_model.json and station_<key>_meta.json.
type JSONPersister[T any] struct {
	dir string
}

type metadata struct {
	UID       int       `json:"uid"`
	TrainedAt time.Time `json:"trained_at"`
}

// NewJSONPersister creates dir if needed.
func NewJSONPersister[T any](dir string) (*JSONPersister[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	return &JSONPersister[T]{dir: dir}, nil
}

func (p *JSONPersister[T]) modelPath(key int) string {
	return filepath.Join(p.dir, fmt.Sprintf("station_%d_model.json", key))
}

func (p *JSONPersister[T]) metaPath(key int) string {
	return filepath.Join(p.dir, fmt.Sprintf("station_%d_meta.json", key))
}

func (p *JSONPersister[T]) Load(key int) (T, time.Time, error) {
	var zero T

	metaBytes, err := os.ReadFile(p.metaPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return zero, time.Time{}, ErrMiss
	}
	if err != nil {
		return zero, time.Time{}, err
	}
	var meta metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return zero, time.Time{}, fmt.Errorf("decode %s: %w", p.metaPath(key), err)
	}

	modelBytes, err := os.ReadFile(p.modelPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return zero, time.Time{}, ErrMiss
	}
	if err != nil {
		return zero, time.Time{}, err
	}
	var v T
	if err := json.Unmarshal(modelBytes, &v); err != nil {
		return zero, time.Time{}, fmt.Errorf("decode %s: %w", p.modelPath(key), err)
	}
	return v, meta.TrainedAt, nil
}

// Save writes the model before its metadata so a reader never sees fresh
// metadata next to a missing model.
func (p *JSONPersister[T]) Save(key int, v T, trainedAt time.Time) error {
	modelBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	metaBytes, err := json.Marshal(metadata{UID: key, TrainedAt: trainedAt})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeAtomic(p.modelPath(key), modelBytes); err != nil {
		return err
	}
	return writeAtomic(p.metaPath(key), metaBytes)
}

func (p *JSONPersister[T]) Remove(key int) error {
	var result *multierror.Error
	for _, path := range []string{p.modelPath(key), p.metaPath(key)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (p *JSONPersister[T]) RemoveAll() error {
	matches, err := filepath.Glob(filepath.Join(p.dir, "station_*_*.json"))
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
