package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	vlog "github.com/speechviz/voicemap/internal/log"
)

// writeDocument writes the projections artifact atomically and durably:
// renameio fsyncs the temp file before the rename so a crash never leaves a
// truncated artifact behind.
func writeDocument(ctx context.Context, path string, doc *Document) error {
	logger := vlog.FromContext(ctx)

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending projections file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending projections file")
		}
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode projections: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace projections file: %w", err)
	}
	return nil
}

// ReadDocument loads a previously written projections artifact.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is confined to the data directory by callers
	if err != nil {
		return nil, fmt.Errorf("read projections: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode projections: %w", err)
	}
	return &doc, nil
}
