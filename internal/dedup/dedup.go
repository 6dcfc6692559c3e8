package dedup

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/store"
	"knowledge-platform/internal/vectorindex"
	"knowledge-platform/models"
)

// Verdict kinds
const (
	KindNone  = "none"
	KindExact = "exact"
	KindNear  = "near"
)

// Verdict is the outcome of a duplicate check. Exact duplicates are dropped
// by the caller; near duplicates stay indexed but carry a link to the
// canonical fragment.
type Verdict struct {
	Kind  string
	RefID primitive.ObjectID
}

// Deduplicator detects exact and near duplicates among fragments. Exact
// detection is hash-based and cheap; near detection compares embeddings and
// only runs once a vector exists.
type Deduplicator struct {
	fragments store.Fragments
	index     vectorindex.Index
	threshold float64

	// seen tracks hashes within one document run so duplicates inside a
	// single document are caught before anything is persisted.
	seen map[string]int
}

func New(fragments store.Fragments, index vectorindex.Index, threshold float64) (*Deduplicator, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("near-duplicate threshold must be in (0, 1], got %f", threshold)
	}
	return &Deduplicator{
		fragments: fragments,
		index:     index,
		threshold: threshold,
		seen:      make(map[string]int),
	}, nil
}

// CheckExact reports whether the draft's content hash was already seen in
// this run or exists in the store. The first occurrence wins; later ones are
// exact duplicates.
func (d *Deduplicator) CheckExact(ctx context.Context, draft models.FragmentDraft) (Verdict, error) {
	if draft.ContentHash == "" {
		return Verdict{Kind: KindNone}, nil
	}
	if _, ok := d.seen[draft.ContentHash]; ok {
		return Verdict{Kind: KindExact}, nil
	}

	existing, err := d.fragments.FindByContentHash(ctx, draft.ContentHash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Verdict{}, fmt.Errorf("failed to look up fragment hash: %w", err)
	}
	if existing != nil {
		return Verdict{Kind: KindExact, RefID: existing.ID}, nil
	}

	d.seen[draft.ContentHash] = draft.Index
	return Verdict{Kind: KindNone}, nil
}

// CheckNear queries the vector index for an already-indexed fragment from a
// different source whose cosine similarity meets the threshold. The match
// with the highest similarity becomes the canonical reference.
func (d *Deduplicator) CheckNear(ctx context.Context, frag models.Fragment, vector []float32) (Verdict, error) {
	filter := vectorindex.Filter{
		ExcludeSource:   frag.SourceID,
		ExcludeDocument: frag.DocumentID,
	}
	matches, err := d.index.Query(ctx, vector, 1, filter)
	if err != nil {
		return Verdict{}, fmt.Errorf("near-duplicate query failed: %w", err)
	}
	if len(matches) == 0 || matches[0].Similarity < d.threshold {
		return Verdict{Kind: KindNone}, nil
	}
	if matches[0].FragmentID == frag.ID {
		return Verdict{Kind: KindNone}, nil
	}
	return Verdict{Kind: KindNear, RefID: matches[0].FragmentID}, nil
}

// Reset clears the per-run hash set. Call between documents when reusing
// one Deduplicator.
func (d *Deduplicator) Reset() {
	d.seen = make(map[string]int)
}
