package storage

import (
	"errors"

	"sbx/internal/config"
	"sbx/internal/domain"
)

// Storage persists and loads run records (e.g. for the failures viewer).
type Storage interface {
	Save(record *domain.RunRecord) error
	Load() (*domain.RunRecord, error)
}

// JSONStorage stores records in a JSON file under the configured output path.
type JSONStorage struct {
	cfg *config.Config
}

// NewJSONStorage returns a Storage that reads/writes the config's output JSON path.
func NewJSONStorage(cfg *config.Config) *JSONStorage {
	return &JSONStorage{cfg: cfg}
}

// Tee saves to every storage and loads from the first one
type Tee []Storage

// NewTee creates a Tee, skipping nil storages
func NewTee(storages ...Storage) Tee {
	t := make(Tee, 0, len(storages))
	for _, s := range storages {
		if s != nil {
			t = append(t, s)
		}
	}
	return t
}

// Save implements Storage
func (t Tee) Save(record *domain.RunRecord) error {
	var errs []error
	for _, s := range t {
		if err := s.Save(record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load implements Storage
func (t Tee) Load() (*domain.RunRecord, error) {
	if len(t) == 0 {
		return nil, errors.New("no storage configured")
	}
	return t[0].Load()
}
