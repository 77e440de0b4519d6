package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

var ErrModelKind = errors.New("model file holds a different predictor")

// modelBlob is the on-disk unit: model, scaler and trained flag travel together.
type modelBlob struct {
	Kind         string          `json:"kind"`
	Trained      bool            `json:"trained"`
	Scaler       *StandardScaler `json:"scaler,omitempty"`
	Coefficients []float64       `json:"coefficients,omitempty"`
	SavedAt      time.Time       `json:"savedAt"`
}

// writeModelBlob writes a zstd-compressed JSON blob next to path and renames it into place.
func writeModelBlob(path string, blob modelBlob) error {
	file, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer os.Remove(file.Name())

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return err
	}

	if err := json.NewEncoder(encoder).Encode(blob); err != nil {
		encoder.Close()
		file.Close()
		return fmt.Errorf("encode %s model: %w", blob.Kind, err)
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return fmt.Errorf("compress %s model: %w", blob.Kind, err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	if err := os.Rename(file.Name(), path); err != nil {
		return fmt.Errorf("save model to %s: %w", path, err)
	}

	return nil
}

func readModelBlob(path string, kind string, featureCount int) (modelBlob, error) {
	file, err := os.Open(path)
	if err != nil {
		return modelBlob{}, fmt.Errorf("open model file: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return modelBlob{}, err
	}
	defer decoder.Close()

	var blob modelBlob
	if err := json.NewDecoder(decoder).Decode(&blob); err != nil {
		return modelBlob{}, fmt.Errorf("decode model %s: %w", path, err)
	}

	if blob.Kind != kind {
		return modelBlob{}, fmt.Errorf("%w: expected %q, found %q", ErrModelKind, kind, blob.Kind)
	}
	if blob.Trained {
		if blob.Scaler == nil || blob.Scaler.Width() != featureCount || len(blob.Scaler.Scale) != featureCount {
			return modelBlob{}, fmt.Errorf("model %s: scaler does not match %d features", path, featureCount)
		}
		if len(blob.Coefficients) != featureCount+1 {
			return modelBlob{}, fmt.Errorf("model %s: expected %d coefficients, found %d", path, featureCount+1, len(blob.Coefficients))
		}
	}

	return blob, nil
}
