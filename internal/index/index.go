package index

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"

	"github.com/semdex/semdex/internal/extract"
)

// Index is the vector index: an HNSW graph plus the id map, mutated only
// as a pair. Writes are serialized by a single writer lock; searches run
// concurrently under the read lock.
//
// Removal is lazy: deleted nodes stay in the graph but are dropped from
// the id map, which is the authoritative live set. Search filters through
// the map, so orphaned nodes never surface in results. Once orphans
// outnumber live entries the graph is rebuilt from the id map, keeping
// the search overfetch and the on-disk snapshot bounded.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	cfg    Config
	logger *slog.Logger

	// idMap maps record id -> internal graph key; keyMap is the reverse.
	// Re-adding an id orphans its old graph key rather than deleting the
	// node, which sidesteps graph-repair on every update.
	idMap   map[uint64]uint64
	keyMap  map[uint64]uint64
	meta    map[uint64]extract.FileMetadata
	nextKey uint64

	lock   *flock.Flock
	closed bool
}

// indexMeta is the gob payload for the id-map artifact.
type indexMeta struct {
	IDMap     map[uint64]uint64
	Meta      map[uint64]extract.FileMetadata
	NextKey   uint64
	Dimension int
}

// New opens or creates a vector index.
//
// If both persisted artifacts exist they are loaded. If neither exists an
// empty pair is created and written immediately, so a crash right after
// construction still leaves a valid empty store. If exactly one exists
// the store is corrupt and New fails with ErrCorruptIndex.
func New(cfg Config, logger *slog.Logger) (*Index, error) {
	if cfg.Dimension < 1 {
		return nil, fmt.Errorf("dimension must be a positive integer, got %d", cfg.Dimension)
	}
	if cfg.IndexPath == "" || cfg.MetaPath == "" {
		return nil, fmt.Errorf("index and meta paths are required")
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.IndexPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	idx := &Index{
		graph:  graph,
		cfg:    cfg,
		logger: logger,
		idMap:  make(map[uint64]uint64),
		keyMap: make(map[uint64]uint64),
		meta:   make(map[uint64]extract.FileMetadata),
		lock:   flock.New(cfg.IndexPath + ".lock"),
	}

	locked, err := idx.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index at %s is locked by another process", cfg.IndexPath)
	}

	indexExists := fileExists(cfg.IndexPath)
	metaExists := fileExists(cfg.MetaPath)

	switch {
	case indexExists && metaExists:
		if err := idx.load(); err != nil {
			_ = idx.lock.Unlock()
			return nil, err
		}
	case !indexExists && !metaExists:
		if err := idx.persistLocked(); err != nil {
			_ = idx.lock.Unlock()
			return nil, fmt.Errorf("initialize empty store: %w", err)
		}
	default:
		_ = idx.lock.Unlock()
		return nil, ErrCorruptIndex
	}

	return idx, nil
}

// Add inserts a vector with its metadata under the given id, then
// persists. Re-adding an existing id overwrites vector and metadata
// (last writer wins); the old graph entry is orphaned first so the graph
// never holds two live entries for one id. Two distinct paths hashing to
// the same id overwrite each other the same way.
//
// A persistence failure is returned as *PersistenceError; the in-memory
// mutation is kept.
func (x *Index) Add(id uint64, vector []float32, meta extract.FileMetadata) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("index is closed")
	}
	if len(vector) != x.cfg.Dimension {
		return ErrDimensionMismatch{Expected: x.cfg.Dimension, Got: len(vector)}
	}

	x.removeLocked(id)

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	key := x.nextKey
	x.nextKey++
	x.graph.Add(hnsw.MakeNode(key, vec))
	x.idMap[id] = key
	x.keyMap[key] = id
	x.meta[id] = meta

	x.maybeCompactLocked()
	return x.persistLocked()
}

// Remove deletes the id from both structures and persists. Removing an
// absent id is a no-op, not an error, and leaves the store untouched.
func (x *Index) Remove(id uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("index is closed")
	}
	if _, exists := x.idMap[id]; !exists {
		return nil
	}

	x.removeLocked(id)
	x.maybeCompactLocked()
	return x.persistLocked()
}

// removeLocked orphans the graph entry for id and drops it from the id
// map and metadata map. Caller holds the write lock.
func (x *Index) removeLocked(id uint64) {
	if key, exists := x.idMap[id]; exists {
		delete(x.keyMap, key)
		delete(x.idMap, id)
		delete(x.meta, id)
	}
}

// compactMinOrphans is the floor below which compaction never runs, so
// small stores are not rebuilt on every churn.
const compactMinOrphans = 128

// maybeCompactLocked rebuilds the graph from the live id map once
// orphaned nodes outnumber live ones. Caller holds the write lock and
// persists afterwards, so the compacted graph reaches disk.
func (x *Index) maybeCompactLocked() {
	orphans := x.graph.Len() - len(x.idMap)
	if orphans < compactMinOrphans || orphans <= len(x.idMap) {
		return
	}

	fresh := hnsw.NewGraph[uint64]()
	fresh.Distance = hnsw.CosineDistance
	fresh.M = x.cfg.M
	fresh.EfSearch = x.cfg.EfSearch
	fresh.Ml = 0.25

	idMap := make(map[uint64]uint64, len(x.idMap))
	keyMap := make(map[uint64]uint64, len(x.idMap))
	var next uint64
	for id, key := range x.idMap {
		vec, ok := x.graph.Lookup(key)
		if !ok {
			delete(x.meta, id)
			continue
		}
		fresh.Add(hnsw.MakeNode(next, vec))
		idMap[id] = next
		keyMap[next] = id
		next++
	}

	x.graph = fresh
	x.idMap = idMap
	x.keyMap = keyMap
	x.nextKey = next

	x.logger.Info("compacted vector index",
		slog.Int("live", len(idMap)),
		slog.Int("orphans_dropped", orphans))
}

// Search returns up to topK records ordered by ascending distance to the
// query vector, ties broken by id ascending so results are reproducible.
// Entries without metadata are skipped.
func (x *Index) Search(query []float32, topK int) ([]Result, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != x.cfg.Dimension {
		return nil, ErrDimensionMismatch{Expected: x.cfg.Dimension, Got: len(query)}
	}
	if topK <= 0 || len(x.idMap) == 0 {
		return []Result{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Overfetch past lazily-deleted orphans so topK live results remain
	// reachable after removals.
	orphans := x.graph.Len() - len(x.idMap)
	nodes := x.graph.Search(q, topK+orphans)

	results := make([]Result, 0, topK)
	for _, node := range nodes {
		id, live := x.keyMap[node.Key]
		if !live {
			continue
		}
		meta, ok := x.meta[id]
		if !ok {
			continue
		}
		results = append(results, Result{
			ID:       id,
			Distance: x.graph.Distance(q, node.Value),
			Meta:     meta,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Exists reports whether the id is currently indexed.
func (x *Index) Exists(id uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.idMap[id]
	return ok
}

// Count returns the number of live records.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idMap)
}

// IsEmpty reports whether the index holds no live records.
func (x *Index) IsEmpty() bool {
	return x.Count() == 0
}

// Stats holds graph occupancy counters. Orphans are lazily-deleted
// nodes still present in the graph.
type Stats struct {
	Live       int
	GraphNodes int
	Orphans    int
}

// Stats returns the current graph occupancy.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return Stats{
		Live:       len(x.idMap),
		GraphNodes: x.graph.Len(),
		Orphans:    x.graph.Len() - len(x.idMap),
	}
}

// IDs returns a snapshot of every live record id, in no particular
// order.
func (x *Index) IDs() []uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]uint64, 0, len(x.idMap))
	for id := range x.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Metadata returns the stored metadata for an id.
func (x *Index) Metadata(id uint64) (extract.FileMetadata, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	m, ok := x.meta[id]
	return m, ok
}

// Dimension returns the configured vector dimension.
func (x *Index) Dimension() int {
	return x.cfg.Dimension
}

// Close releases the index lock. The store on disk is already current
// because every mutation writes through.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	x.graph = nil
	return x.lock.Unlock()
}

// persistLocked writes both artifacts via temp-file-and-rename. Caller
// holds the write lock. Failure leaves memory ahead of disk and is
// reported, not rolled back.
func (x *Index) persistLocked() error {
	if err := x.saveGraph(); err != nil {
		x.logger.Error("index snapshot write failed, in-memory state is ahead of disk",
			slog.String("path", x.cfg.IndexPath),
			slog.String("error", err.Error()))
		return &PersistenceError{Path: x.cfg.IndexPath, Err: err}
	}
	if err := x.saveMeta(); err != nil {
		x.logger.Error("id-map write failed, in-memory state is ahead of disk",
			slog.String("path", x.cfg.MetaPath),
			slog.String("error", err.Error()))
		return &PersistenceError{Path: x.cfg.MetaPath, Err: err}
	}
	return nil
}

// saveGraph exports the HNSW graph atomically.
func (x *Index) saveGraph() error {
	tmpPath := x.cfg.IndexPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	if err := x.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, x.cfg.IndexPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// saveMeta writes the id map as a gob file atomically.
func (x *Index) saveMeta() error {
	tmpPath := x.cfg.MetaPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create id-map file: %w", err)
	}

	payload := indexMeta{
		IDMap:     x.idMap,
		Meta:      x.meta,
		NextKey:   x.nextKey,
		Dimension: x.cfg.Dimension,
	}
	if err := gob.NewEncoder(file).Encode(payload); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode id map: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close id-map file: %w", err)
	}

	return os.Rename(tmpPath, x.cfg.MetaPath)
}

// load restores both artifacts from disk.
func (x *Index) load() error {
	file, err := os.Open(x.cfg.MetaPath)
	if err != nil {
		return fmt.Errorf("open id map: %w", err)
	}

	var payload indexMeta
	err = gob.NewDecoder(file).Decode(&payload)
	_ = file.Close()
	if err != nil {
		return fmt.Errorf("decode id map: %w", err)
	}

	if payload.Dimension != x.cfg.Dimension {
		return fmt.Errorf("stored index dimension %d does not match configured dimension %d",
			payload.Dimension, x.cfg.Dimension)
	}

	x.idMap = payload.IDMap
	x.meta = payload.Meta
	x.nextKey = payload.NextKey
	if x.idMap == nil {
		x.idMap = make(map[uint64]uint64)
	}
	if x.meta == nil {
		x.meta = make(map[uint64]extract.FileMetadata)
	}
	x.keyMap = make(map[uint64]uint64, len(x.idMap))
	for id, key := range x.idMap {
		x.keyMap[key] = id
	}

	graphFile, err := os.Open(x.cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("open graph snapshot: %w", err)
	}
	defer func() { _ = graphFile.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := x.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
