package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/models"
)

// NewMemoryStore builds a fully in-memory Store with the same semantics as
// the Mongo-backed one. It serves tests and local development without a
// database.
func NewMemoryStore() *Store {
	documents := &memDocuments{byID: make(map[primitive.ObjectID]*models.Document)}
	fragments := &memFragments{byID: make(map[primitive.ObjectID]*models.Fragment)}
	embeddings := &memEmbeddings{}
	return &Store{
		Sources: &memSources{
			byID:       make(map[primitive.ObjectID]*models.Source),
			documents:  documents,
			fragments:  fragments,
			embeddings: embeddings,
		},
		Documents:     documents,
		Fragments:     fragments,
		Embeddings:    embeddings,
		Quality:       &memQuality{},
		SearchHistory: &memSearchHistory{},
	}
}

type memSources struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*models.Source

	// Siblings for cascade deletion, mirroring the Mongo implementation.
	documents  *memDocuments
	fragments  *memFragments
	embeddings *memEmbeddings
}

func (s *memSources) Create(ctx context.Context, source *models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Name == source.Name {
			return ErrDuplicateName
		}
	}
	if source.QualityWeight == 0 {
		source.QualityWeight = models.DefaultQualityWeight
	}
	if !models.ValidQualityWeight(source.QualityWeight) {
		return fmt.Errorf("quality weight %.2f out of range [%.1f, %.1f]",
			source.QualityWeight, models.MinQualityWeight, models.MaxQualityWeight)
	}
	source.ID = primitive.NewObjectID()
	now := time.Now()
	source.CreatedAt = now
	source.UpdatedAt = now
	cp := *source
	s.byID[source.ID] = &cp
	return nil
}

func (s *memSources) Get(ctx context.Context, id primitive.ObjectID) (*models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	source, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *source
	return &cp, nil
}

func (s *memSources) GetByName(ctx context.Context, name string) (*models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, source := range s.byID {
		if source.Name == name {
			cp := *source
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memSources) List(ctx context.Context) ([]models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Source
	for _, source := range s.byID {
		out = append(out, *source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memSources) ListActive(ctx context.Context) ([]models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Source
	for _, source := range s.byID {
		if source.Active {
			out = append(out, *source)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memSources) SetQualityWeight(ctx context.Context, id primitive.ObjectID, weight float64) error {
	if !models.ValidQualityWeight(weight) {
		return fmt.Errorf("quality weight %.2f out of range [%.1f, %.1f]",
			weight, models.MinQualityWeight, models.MaxQualityWeight)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	source.QualityWeight = weight
	source.UpdatedAt = time.Now()
	return nil
}

func (s *memSources) RecordPoll(ctx context.Context, id primitive.ObjectID, failed bool, failureLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	source.LastCheckedAt = &now
	source.UpdatedAt = now
	if !failed {
		source.FailureCount = 0
		return nil
	}
	source.FailureCount++
	if failureLimit > 0 && source.FailureCount >= failureLimit {
		source.Active = false
	}
	return nil
}

func (s *memSources) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.RLock()
	_, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	// Cascade bottom-up like the Mongo implementation: embeddings, then
	// fragments, then documents, then the source row itself.
	docs, err := s.documents.ListBySource(ctx, id)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		frags, err := s.fragments.ListByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		for _, frag := range frags {
			if err := s.embeddings.DeleteByFragment(ctx, frag.ID); err != nil {
				return err
			}
		}
		if err := s.fragments.DeleteByDocument(ctx, doc.ID); err != nil {
			return err
		}
		if err := s.documents.Delete(ctx, doc.ID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

type memDocuments struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*models.Document
}

func (d *memDocuments) Create(ctx context.Context, doc *models.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc.ContentHash != "" && doc.Status != models.StatusSkipped {
		for _, existing := range d.byID {
			if existing.ContentHash == doc.ContentHash && existing.Status != models.StatusSkipped {
				return ErrDuplicateHash
			}
		}
	}
	doc.ID = primitive.NewObjectID()
	doc.IngestedAt = time.Now()
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	cp := *doc
	d.byID[doc.ID] = &cp
	return nil
}

func (d *memDocuments) Get(ctx context.Context, id primitive.ObjectID) (*models.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (d *memDocuments) FindByContentHash(ctx context.Context, hash string) (*models.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, doc := range d.byID {
		if doc.ContentHash == hash && doc.Status != models.StatusSkipped {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memDocuments) ListBySource(ctx context.Context, sourceID primitive.ObjectID) ([]models.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []models.Document
	for _, doc := range d.byID {
		if doc.SourceID == sourceID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestedAt.Before(out[j].IngestedAt) })
	return out, nil
}

func (d *memDocuments) ListByStatus(ctx context.Context, status string, limit int) ([]models.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []models.Document
	for _, doc := range d.byID {
		if doc.Status == status {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestedAt.Before(out[j].IngestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memDocuments) SetStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	doc.ErrorMessage = errMsg
	if status == models.StatusCompleted || status == models.StatusFailed {
		now := time.Now()
		doc.ProcessedAt = &now
	}
	return nil
}

func (d *memDocuments) SetCompleted(ctx context.Context, id primitive.ObjectID, fragmentCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = models.StatusCompleted
	doc.FragmentCount = fragmentCount
	doc.ErrorMessage = ""
	now := time.Now()
	doc.ProcessedAt = &now
	return nil
}

func (d *memDocuments) SetQuality(ctx context.Context, id primitive.ObjectID, score float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	doc.QualityScore = score
	return nil
}

func (d *memDocuments) Delete(ctx context.Context, id primitive.ObjectID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id]; !ok {
		return ErrNotFound
	}
	delete(d.byID, id)
	return nil
}

type memFragments struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*models.Fragment
}

func (f *memFragments) InsertMany(ctx context.Context, fragments []models.Fragment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i := range fragments {
		if fragments[i].ID.IsZero() {
			fragments[i].ID = primitive.NewObjectID()
		}
		fragments[i].CreatedAt = now
		cp := fragments[i]
		f.byID[cp.ID] = &cp
	}
	return nil
}

func (f *memFragments) Get(ctx context.Context, id primitive.ObjectID) (*models.Fragment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	frag, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *frag
	return &cp, nil
}

func (f *memFragments) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Fragment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []models.Fragment
	for _, id := range ids {
		if frag, ok := f.byID[id]; ok {
			out = append(out, *frag)
		}
	}
	return out, nil
}

func (f *memFragments) ListByDocument(ctx context.Context, documentID primitive.ObjectID) ([]models.Fragment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []models.Fragment
	for _, frag := range f.byID {
		if frag.DocumentID == documentID {
			out = append(out, *frag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *memFragments) ListByStatus(ctx context.Context, status string, limit int) ([]models.Fragment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []models.Fragment
	for _, frag := range f.byID {
		if frag.Status == status {
			out = append(out, *frag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *memFragments) FindByContentHash(ctx context.Context, hash string) (*models.Fragment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, frag := range f.byID {
		if frag.ContentHash == hash {
			cp := *frag
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *memFragments) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	frag, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	frag.Status = status
	return nil
}

func (f *memFragments) SetQuality(ctx context.Context, id primitive.ObjectID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	frag, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	frag.QualityScore = score
	return nil
}

func (f *memFragments) SetNearDuplicate(ctx context.Context, id, refID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	frag, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	ref := refID
	frag.NearDuplicateOf = &ref
	return nil
}

func (f *memFragments) ClearNearDuplicates(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, frag := range f.byID {
		frag.NearDuplicateOf = nil
	}
	return nil
}

func (f *memFragments) DeleteByDocument(ctx context.Context, documentID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, frag := range f.byID {
		if frag.DocumentID == documentID {
			delete(f.byID, id)
		}
	}
	return nil
}

type memEmbeddings struct {
	mu   sync.RWMutex
	rows []models.Embedding
}

func (e *memEmbeddings) Upsert(ctx context.Context, emb *models.Embedding) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	emb.CreatedAt = time.Now()
	for i := range e.rows {
		if e.rows[i].FragmentID == emb.FragmentID &&
			e.rows[i].Model == emb.Model &&
			e.rows[i].ModelVersion == emb.ModelVersion {
			emb.ID = e.rows[i].ID
			e.rows[i] = *emb
			return nil
		}
	}
	emb.ID = primitive.NewObjectID()
	e.rows = append(e.rows, *emb)
	return nil
}

func (e *memEmbeddings) GetByFragment(ctx context.Context, fragmentID primitive.ObjectID, model, version string) (*models.Embedding, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.rows {
		if e.rows[i].FragmentID == fragmentID &&
			e.rows[i].Model == model &&
			e.rows[i].ModelVersion == version {
			cp := e.rows[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (e *memEmbeddings) DeleteByFragment(ctx context.Context, fragmentID primitive.ObjectID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.rows[:0]
	for _, row := range e.rows {
		if row.FragmentID != fragmentID {
			kept = append(kept, row)
		}
	}
	e.rows = kept
	return nil
}

func (e *memEmbeddings) DeleteByModel(ctx context.Context, model, version string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.rows[:0]
	for _, row := range e.rows {
		if row.Model != model || row.ModelVersion != version {
			kept = append(kept, row)
		}
	}
	e.rows = kept
	return nil
}

type memQuality struct {
	mu   sync.RWMutex
	rows []models.QualityScore
}

func (q *memQuality) Append(ctx context.Context, scores []models.QualityScore) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, score := range scores {
		for i := range q.rows {
			if q.rows[i].EntityType == score.EntityType &&
				q.rows[i].EntityID == score.EntityID &&
				q.rows[i].ScoreType == score.ScoreType {
				q.rows[i].IsCurrent = false
			}
		}
		score.ID = primitive.NewObjectID()
		score.IsCurrent = true
		if score.EvaluatedAt.IsZero() {
			score.EvaluatedAt = now
		}
		q.rows = append(q.rows, score)
	}
	return nil
}

func (q *memQuality) Current(ctx context.Context, entityType string, entityID primitive.ObjectID, scoreType string) (*models.QualityScore, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for i := len(q.rows) - 1; i >= 0; i-- {
		row := q.rows[i]
		if row.EntityType == entityType && row.EntityID == entityID &&
			row.ScoreType == scoreType && row.IsCurrent {
			return &row, nil
		}
	}
	return nil, ErrNotFound
}

func (q *memQuality) History(ctx context.Context, entityType string, entityID primitive.ObjectID, scoreType string) ([]models.QualityScore, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []models.QualityScore
	for _, row := range q.rows {
		if row.EntityType == entityType && row.EntityID == entityID && row.ScoreType == scoreType {
			out = append(out, row)
		}
	}
	return out, nil
}

type memSearchHistory struct {
	mu   sync.RWMutex
	rows []models.SearchHistory
}

func (h *memSearchHistory) Log(ctx context.Context, entry *models.SearchHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry.ID = primitive.NewObjectID()
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	h.rows = append(h.rows, *entry)
	return nil
}

func (h *memSearchHistory) Recent(ctx context.Context, limit int) ([]models.SearchHistory, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.SearchHistory, len(h.rows))
	copy(out, h.rows)
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *memSearchHistory) CountSince(ctx context.Context, since time.Time) (int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var n int64
	for _, row := range h.rows {
		if !row.ExecutedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (h *memSearchHistory) Popular(ctx context.Context, since time.Time, limit int) ([]models.PopularQuery, error) {
	if limit <= 0 {
		limit = 10
	}
	h.mu.RLock()
	counts := make(map[string]int64)
	for _, row := range h.rows {
		if !row.ExecutedAt.Before(since) {
			counts[row.Query]++
		}
	}
	h.mu.RUnlock()

	rows := make([]models.PopularQuery, 0, len(counts))
	for query, count := range counts {
		rows = append(rows, models.PopularQuery{Query: query, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Query < rows[j].Query
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
