package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"prepbot/internal/document"
)

// WriteScanOutput rewrites path with only the chunks of the latest scan, one JSON object per line.
func WriteScanOutput(path string, chunks []document.Chunk) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encode scan output: %w", err)
		}
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write scan output: %w", err)
	}
	return nil
}

func ReadScanOutput(path string) ([]document.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scan output: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var chunks []document.Chunk
	for dec.More() {
		var c document.Chunk
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("decode scan output: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// WriteEmbeddedOutput overwrites path with a JSON array of embedded items.
func WriteEmbeddedOutput(path string, items []document.EmbeddedItem) error {
	if items == nil {
		items = []document.EmbeddedItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode embedded output: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write embedded output: %w", err)
	}
	return nil
}

// ReadEmbeddedOutput fails with ErrEmbeddedOutputMissing when the file does not exist.
func ReadEmbeddedOutput(path string) ([]document.EmbeddedItem, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddedOutputMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read embedded output: %w", err)
	}
	var items []document.EmbeddedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode embedded output: %w", err)
	}
	return items, nil
}

// EmbeddedItems returns the embedded and indexed records as items, in ledger order.
func EmbeddedItems(records []Record) []document.EmbeddedItem {
	var items []document.EmbeddedItem
	for _, r := range records {
		if r.Status == StatusPending {
			continue
		}
		items = append(items, r.EmbeddedItem())
	}
	return items
}
