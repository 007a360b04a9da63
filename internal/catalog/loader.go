package catalog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"subpromo/internal/model"

	"github.com/rs/zerolog"
)

// fileLoader implements Loader for gzipped catalog files on local disk.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based catalog loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "catalog-loader").Logger(),
	}
}

// Load reads a gzipped catalog file with one JSON promo code definition per line.
func (l *fileLoader) Load(ctx context.Context, filePath string) (*Batch, error) {
	l.logger.Info().Str("file", filePath).Msg("loading catalog file")

	file, err := os.Open(filePath)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to open catalog file")
		return nil, fmt.Errorf("failed to open catalog file %s: %w", filePath, err)
	}
	defer file.Close()

	batch, err := decode(ctx, file, filePath)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to read catalog file")
		return nil, err
	}

	l.logger.Info().
		Str("file", filePath).
		Int("definitions", len(batch.Entries)).
		Int("malformed", len(batch.Errors)).
		Msg("catalog file loaded")

	return batch, nil
}

// decode reads gzipped JSON lines from r. Blank lines and lines starting
// with '#' are skipped.
func decode(ctx context.Context, r io.Reader, source string) (*Batch, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", source, err)
	}
	defer gzipReader.Close()

	batch := &Batch{Source: source}

	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%10_000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var def model.PromoCodeDefinition
		if err := json.Unmarshal(line, &def); err != nil {
			batch.Errors = append(batch.Errors, LineError{
				Source: source,
				Line:   lineNo,
				Reason: fmt.Sprintf("malformed definition: %v", err),
			})
			continue
		}
		batch.Entries = append(batch.Entries, Entry{Line: lineNo, Definition: def})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading catalog %s: %w", source, err)
	}

	return batch, nil
}
