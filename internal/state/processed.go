package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type processedFile struct {
	FileHashes []string `json:"file_hashes"`
}

// FileProcessedStore keeps the processed set as {"file_hashes": [...]}.
type FileProcessedStore struct {
	path string
}

func NewFileProcessedStore(path string) *FileProcessedStore {
	return &FileProcessedStore{path: path}
}

// Load treats a missing file as an empty set.
func (s *FileProcessedStore) Load(ctx context.Context) (ProcessedSet, error) {
	set := ProcessedSet{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processed files: %w", err)
	}

	var pf processedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decode processed files %s: %w", s.path, err)
	}
	for _, h := range pf.FileHashes {
		set.Add(h)
	}
	return set, nil
}

// Save overwrites the whole file.
func (s *FileProcessedStore) Save(ctx context.Context, set ProcessedSet) error {
	data, err := json.MarshalIndent(processedFile{FileHashes: set.Sorted()}, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write processed files: %w", err)
	}
	return nil
}
