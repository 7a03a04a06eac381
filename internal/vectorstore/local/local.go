// Package local implements adapter.VectorStore as a JSON file on disk
// with brute-force cosine search, the VectorStore fallback selected
// when neither QDRANT_URL nor QDRANT_HOST/QDRANT_PORT is set.
// Grounded on the in-process VectorStore port shape of
// 0xcro3dile-localrag-go.
package local

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
)

// record is one stored point. Seq is assigned on first insert and
// survives re-upserts and file reloads, so score ties can be broken
// by insertion order the way search promises.
type record struct {
	ID      string               `json:"id"`
	Seq     uint64               `json:"seq"`
	Vector  []float32            `json:"vector"`
	Payload domain.VectorPayload `json:"payload"`
}

// Store persists all points to a single JSON file, rewritten on every
// mutation. Good enough for the local/single-process deployment this
// fallback targets; not meant to scale past a dev workstation.
type Store struct {
	mu       sync.Mutex
	path     string
	dim      int
	distance string
	nextSeq  uint64
	points   map[string]record
}

// New creates a Store backed by the JSON file at path, loading any
// existing points.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "create vector store directory", err)
	}
	s := &Store{path: path, points: map[string]record{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apierr.Wrap(apierr.Permanent, "read vector store file", err)
	}
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return apierr.Wrap(apierr.Permanent, "parse vector store file", err)
	}
	for _, r := range recs {
		s.points[r.ID] = r
		if r.Seq >= s.nextSeq {
			s.nextSeq = r.Seq + 1
		}
	}
	return nil
}

// flush must be called with s.mu held.
func (s *Store) flush() error {
	recs := make([]record, 0, len(s.points))
	for _, r := range s.points {
		recs = append(recs, r)
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "marshal vector store", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierr.Wrap(apierr.Transient, "write vector store file", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) EnsureCollection(_ context.Context, dim int, distance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if distance == "" {
		distance = "cosine"
	}
	s.dim = dim
	s.distance = distance
	return nil
}

func (s *Store) Upsert(_ context.Context, points []adapter.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		seq := s.nextSeq
		if existing, ok := s.points[p.ID]; ok {
			seq = existing.Seq
		} else {
			s.nextSeq++
		}
		s.points[p.ID] = record{ID: p.ID, Seq: seq, Vector: p.Vector, Payload: p.Payload}
	}
	return s.flush()
}

func (s *Store) Search(_ context.Context, vec []float32, topK int, filter adapter.SearchFilter) ([]adapter.ScoredPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		score float32
		rec   record
	}
	var matches []candidate
	for _, r := range s.points {
		if r.Payload.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.DocumentID != "" && r.Payload.DocumentID != filter.DocumentID {
			continue
		}
		matches = append(matches, candidate{score: cosine(vec, r.Vector), rec: r})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].rec.Seq < matches[j].rec.Seq
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	out := make([]adapter.ScoredPoint, len(matches))
	for i, m := range matches {
		out[i] = adapter.ScoredPoint{Score: m.score, Payload: m.rec.Payload}
	}
	return out, nil
}

func (s *Store) DeleteByFilter(_ context.Context, filter adapter.SearchFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.points {
		if r.Payload.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.DocumentID != "" && r.Payload.DocumentID != filter.DocumentID {
			continue
		}
		delete(s.points, id)
	}
	return s.flush()
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
