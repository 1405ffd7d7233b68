package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

type entry struct {
	vector   []float32
	norm     float64
	metadata map[string]string
}

// MemoryIndex is a brute-force cosine similarity index. Norms are precomputed
// at insert time so each search costs one dot product per stored vector.
type MemoryIndex struct {
	dimensions int
	mu         sync.RWMutex
	entries    map[string]*entry
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]*entry),
	}, nil
}

// Upsert inserts or replaces the vector and metadata for id.
func (m *MemoryIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if len(vector) != m.dimensions {
		return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vector), m.dimensions)
	}
	vec := make([]float32, m.dimensions)
	copy(vec, vector)

	var meta map[string]string
	if metadata != nil {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &entry{vector: vec, norm: vectorNorm(vec), metadata: meta}
	return nil
}

// Remove deletes a vector by ID. Returns false when the ID was not indexed.
func (m *MemoryIndex) Remove(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return false
	}
	delete(m.entries, id)
	return true
}

// Search returns the top-k entries by cosine similarity to query, filtered by
// metadata before scoring. Ties are broken by ascending ID. An empty index
// yields an empty result.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	queryNorm := vectorNorm(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.entries))
	for id, e := range m.entries {
		if !filter.Matches(e.metadata) {
			continue
		}
		results = append(results, Result{ID: id, Score: cosine(query, queryNorm, e.vector, e.norm)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Size returns the number of stored vectors.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// Save persists the index to path. Format: dimensions (4), count (4), then per
// entry: idLen (4), id bytes, metaLen (4), metadata JSON, vector (dimensions*4
// bytes). All integers little-endian.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := m.entries[id]
		metaBytes, err := json.Marshal(e.metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := f.Write([]byte(id)); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(len(metaBytes))); err != nil {
			return fmt.Errorf("write metadata len: %w", err)
		}
		if _, err := f.Write(metaBytes); err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(e.vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the index contents with a snapshot previously written by Save.
// Dimensions must match. A missing file is not an error; the index stays empty.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	entries := make(map[string]*entry, n)
	vecBuf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		var metaLen uint32
		if err := binary.Read(f, binary.LittleEndian, &metaLen); err != nil {
			return fmt.Errorf("read metadata len: %w", err)
		}
		metaBytes := make([]byte, metaLen)
		if _, err := io.ReadFull(f, metaBytes); err != nil {
			return fmt.Errorf("read metadata: %w", err)
		}
		var meta map[string]string
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
		if _, err := io.ReadFull(f, vecBuf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		vec := bytesToFloat32Slice(vecBuf)
		entries[string(idBytes)] = &entry{vector: vec, norm: vectorNorm(vec), metadata: meta}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	return nil
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
