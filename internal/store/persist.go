package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/chunkstore"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorindex"
)

// On-disk layout of one tenant directory:
//
//	CURRENT            generation number of the committed state
//	index-<gen>.bin    vectorindex binary encoding
//	meta-<gen>.json    profile and ordered chunk records
//
// A generation becomes visible only when CURRENT is renamed over. Files
// of other generations are leftovers of earlier commits or of a failed
// one and are pruned.
const (
	currentFile   = "CURRENT"
	metaVersion   = 1
	dirPerm       = 0o700
	filePerm      = 0o600
	indexPrefix   = "index-"
	indexSuffix   = ".bin"
	metaPrefix    = "meta-"
	metaSuffix    = ".json"
	tempSeparator = ".tmp."
)

// metadata is the JSON document stored next to each index generation.
type metadata struct {
	Version    int            `json:"version"`
	Generation uint64         `json:"generation"`
	Tenant     tenant.Key     `json:"tenant"`
	Profile    tenant.Profile `json:"profile"`
	Dimension  int            `json:"dimension"`
	Rows       int            `json:"rows"`
	Chunks     []chunk.Record `json:"chunks"`
}

// state is one complete, row-aligned store state.
type state struct {
	generation uint64
	index      *vectorindex.Flat
	chunks     *chunkstore.Store
	profile    tenant.Profile
}

func indexName(gen uint64) string { return indexPrefix + strconv.FormatUint(gen, 10) + indexSuffix }
func metaName(gen uint64) string  { return metaPrefix + strconv.FormatUint(gen, 10) + metaSuffix }

// writeState persists st as a new generation under dir and publishes it.
// Nothing becomes visible to loadState unless every step succeeds.
func writeState(dir string, key tenant.Key, st state) error {
	if st.index.Size() != st.chunks.Len() {
		return fmt.Errorf("refusing to persist %d vectors for %d chunks", st.index.Size(), st.chunks.Len())
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	meta, err := json.Marshal(metadata{
		Version:    metaVersion,
		Generation: st.generation,
		Tenant:     key,
		Profile:    st.profile,
		Dimension:  st.index.Dimension(),
		Rows:       st.chunks.Len(),
		Chunks:     chunk.ToRecords(st.chunks.Chunks()),
	})
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	blob, err := st.index.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(dir, metaName(st.generation)), meta); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, indexName(st.generation)), blob); err != nil {
		return err
	}
	pointer := []byte(strconv.FormatUint(st.generation, 10) + "\n")
	if err := writeFileAtomic(filepath.Join(dir, currentFile), pointer); err != nil {
		return err
	}
	return syncDir(dir)
}

// loadState reads the committed generation. A directory without CURRENT
// holds no committed state and yields ok == false.
func loadState(dir string, dim int) (st state, ok bool, err error) {
	raw, err := os.ReadFile(filepath.Join(dir, currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return state{}, false, nil
	}
	if err != nil {
		return state{}, false, fmt.Errorf("reading %s: %w", currentFile, err)
	}
	gen, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return state{}, false, fmt.Errorf("parsing %s: %w", currentFile, err)
	}

	metaRaw, err := os.ReadFile(filepath.Join(dir, metaName(gen)))
	if err != nil {
		return state{}, false, fmt.Errorf("reading metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return state{}, false, fmt.Errorf("decoding metadata: %w", err)
	}
	if meta.Version != metaVersion {
		return state{}, false, fmt.Errorf("unsupported metadata version %d", meta.Version)
	}

	blob, err := os.ReadFile(filepath.Join(dir, indexName(gen)))
	if err != nil {
		return state{}, false, fmt.Errorf("reading index: %w", err)
	}
	idx := vectorindex.New(0)
	if err := idx.UnmarshalBinary(blob); err != nil {
		return state{}, false, fmt.Errorf("decoding index: %w", err)
	}

	chunks := chunk.FromRecords(meta.Chunks)
	switch {
	case idx.Size() != len(chunks):
		return state{}, false, fmt.Errorf("index has %d rows but metadata has %d chunks", idx.Size(), len(chunks))
	case meta.Rows != len(chunks):
		return state{}, false, fmt.Errorf("metadata declares %d rows but holds %d chunks", meta.Rows, len(chunks))
	case dim > 0 && idx.Size() > 0 && idx.Dimension() != dim:
		return state{}, false, fmt.Errorf("%w: persisted dimension %d, embedder dimension %d",
			ErrDimensionMismatch, idx.Dimension(), dim)
	}

	return state{
		generation: gen,
		index:      idx,
		chunks:     chunkstore.New(chunks),
		profile:    meta.Profile,
	}, true, nil
}

// pruneGenerations removes files of every generation except keep, plus
// leftover temp files.
func pruneGenerations(dir string, keep uint64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == currentFile || name == indexName(keep) || name == metaName(keep) {
			continue
		}
		if strings.Contains(name, tempSeparator) ||
			strings.HasPrefix(name, indexPrefix) || strings.HasPrefix(name, metaPrefix) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// writeFileAtomic writes data to a temp file created with restricted
// permissions, fsyncs it and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + tempSeparator + uuid.NewString()[:8]

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// syncDir makes the renames durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening store directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("syncing store directory: %w", err)
	}
	return nil
}
