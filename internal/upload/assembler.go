package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bridgeml/bridge/pkg/types"
)

const (
	// The explanatory dataset is uploaded under a reserved file name and
	// stored under a canonical one in its own subdirectory.
	explanatoryFileName = "explanatory_file.csv"
	explanatoryDataName = "explanatory_data.csv"
	explanatoryDir      = "explanatory"
)

// AssemblyResult reports the outcome of one chunk write
type AssemblyResult struct {
	// Completed is true once the final chunk has been reassembled
	Completed bool
	// TargetPath is the local path of the assembled file (set when Completed)
	TargetPath string
	// LabelPath is the label-relative directory the file belongs to,
	// e.g. "heart" or "heart/explanatory"
	LabelPath string
	// FileName is the normalized file name
	FileName string
}

// Assembler persists chunks to session-scoped scratch storage and
// concatenates them in index order once the final chunk arrives. Chunks may
// arrive in any order; a missing index at reassembly time fails the whole
// file and nothing partial survives.
type Assembler struct {
	scratchRoot     string
	cleanupAttempts int
	cleanupDelay    time.Duration
}

// NewAssembler creates a chunk assembler rooted at scratchRoot
func NewAssembler(scratchRoot string, cleanupAttempts int, cleanupDelay time.Duration) *Assembler {
	return &Assembler{
		scratchRoot:     scratchRoot,
		cleanupAttempts: cleanupAttempts,
		cleanupDelay:    cleanupDelay,
	}
}

// WriteChunk persists one chunk and, when index == total-1, reassembles the
// file. Overwriting the same index is idempotent so clients may retry.
func (a *Assembler) WriteChunk(sessionID, label, fileName string, index, total int, payload io.Reader) (AssemblyResult, error) {
	labelPath, name := normalizeName(label, fileName)

	if total <= 0 || index < 0 || index >= total {
		return AssemblyResult{}, fmt.Errorf("%w: chunk index %d of %d", types.ErrValidation, index, total)
	}

	chunkDir := filepath.Join(a.scratchRoot, sessionID, filepath.FromSlash(labelPath), "chunks")
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return AssemblyResult{}, fmt.Errorf("%w: failed to create scratch directory: %v", types.ErrAssembly, err)
	}

	chunkPath := filepath.Join(chunkDir, fmt.Sprintf("%s.part%d", name, index))
	if err := writeFile(chunkPath, payload); err != nil {
		return AssemblyResult{}, fmt.Errorf("%w: failed to write chunk %d of %s: %v", types.ErrAssembly, index, name, err)
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("file", name).
		Int("chunk_index", index).
		Int("total_chunks", total).
		Msg("chunk persisted")

	if index != total-1 {
		return AssemblyResult{LabelPath: labelPath, FileName: name}, nil
	}

	targetPath := filepath.Join(a.scratchRoot, sessionID, filepath.FromSlash(labelPath), name)
	if err := a.reassemble(chunkDir, targetPath, name, total); err != nil {
		return AssemblyResult{}, err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("file", name).
		Int("total_chunks", total).
		Msg("file reassembled")

	return AssemblyResult{
		Completed:  true,
		TargetPath: targetPath,
		LabelPath:  labelPath,
		FileName:   name,
	}, nil
}

// reassemble concatenates chunks 0..total-1 into targetPath, deleting each
// chunk after its bytes are copied. Any failure removes the partial target
// so a truncated file is never promoted.
func (a *Assembler) reassemble(chunkDir, targetPath, name string, total int) error {
	target, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create target file: %v", types.ErrAssembly, err)
	}

	for i := 0; i < total; i++ {
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("%s.part%d", name, i))
		if err := appendChunk(target, chunkPath); err != nil {
			target.Close()
			os.Remove(targetPath)
			return fmt.Errorf("%w: chunk %d of %s: %v", types.ErrAssembly, i, name, err)
		}
		os.Remove(chunkPath)
	}

	if err := target.Sync(); err != nil {
		target.Close()
		os.Remove(targetPath)
		return fmt.Errorf("%w: failed to sync target file: %v", types.ErrAssembly, err)
	}

	return target.Close()
}

// RemoveSession deletes the session's entire scratch tree with bounded
// retries, tolerating transient locked-file errors. Exhausting the retries
// is reported but callers treat it as non-fatal.
func (a *Assembler) RemoveSession(sessionID string) error {
	sessionDir := filepath.Join(a.scratchRoot, sessionID)

	var err error
	for attempt := 0; attempt < a.cleanupAttempts; attempt++ {
		if err = os.RemoveAll(sessionDir); err == nil {
			return nil
		}
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Int("attempt", attempt+1).
			Msg("scratch cleanup failed, retrying")
		time.Sleep(a.cleanupDelay)
	}

	return fmt.Errorf("failed to remove scratch directory %s: %w", sessionDir, err)
}

// normalizeName applies the reserved-name rule: the explanatory dataset is
// stored as explanatory_data.csv inside an explanatory/ subdirectory of the
// label. Everything else keeps its submitted name.
func normalizeName(label, fileName string) (labelPath, name string) {
	if fileName == explanatoryFileName {
		return label + "/" + explanatoryDir, explanatoryDataName
	}
	return label, fileName
}

func writeFile(path string, payload io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, payload); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func appendChunk(target *os.File, chunkPath string) error {
	chunk, err := os.Open(chunkPath)
	if err != nil {
		return err
	}
	defer chunk.Close()

	_, err = io.Copy(target, chunk)
	return err
}
