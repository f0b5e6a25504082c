package recommend

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/profile"
	"github.com/reelpick/reel/pkg/vector"
)

// upsertBatchSize bounds the number of records per upsert call.
const upsertBatchSize = 64

// RebuildStats reports the record counts after a rebuild.
type RebuildStats struct {
	Movies   int
	Ratings  int
	Profiles int
}

// Rebuild clears all three collections and repopulates them from the
// catalog and rating rows. Encoding runs on a bounded worker pool; the
// first embedding or store error cancels the remaining work and fails the
// rebuild. A crash mid-rebuild can leave partially populated collections;
// rerunning Rebuild recovers.
func (e *Engine) Rebuild(ctx context.Context) (RebuildStats, error) {
	var stats RebuildStats

	named := []struct {
		name string
		coll vector.Collection
		dst  *int
	}{
		{"movies", e.coll.Movies, &stats.Movies},
		{"ratings", e.coll.Ratings, &stats.Ratings},
		{"profiles", e.coll.Profiles, &stats.Profiles},
	}

	for _, c := range named {
		if err := c.coll.Clear(ctx); err != nil {
			return stats, fmt.Errorf("clearing %s: %w", c.name, err)
		}
	}

	e.logger.Info("collections cleared, repopulating",
		zap.Int("movies", e.catalog.Len()),
		zap.Int("rating_rows", len(e.ratings)),
	)

	if err := e.rebuildMovies(ctx); err != nil {
		return stats, fmt.Errorf("rebuilding movies: %w", err)
	}
	if err := e.rebuildRatings(ctx); err != nil {
		return stats, fmt.Errorf("rebuilding ratings: %w", err)
	}
	if err := e.rebuildProfiles(ctx); err != nil {
		return stats, fmt.Errorf("rebuilding profiles: %w", err)
	}

	for _, c := range named {
		n, err := c.coll.Count(ctx)
		if err != nil {
			return stats, fmt.Errorf("counting %s: %w", c.name, err)
		}
		*c.dst = n
	}

	e.logger.Info("rebuild complete",
		zap.Int("movies", stats.Movies),
		zap.Int("ratings", stats.Ratings),
		zap.Int("profiles", stats.Profiles),
	)

	return stats, nil
}

func (e *Engine) rebuildMovies(ctx context.Context) error {
	movies := e.catalog.Movies()
	jobs := make([]encodeJob, len(movies))
	for i, m := range movies {
		jobs[i] = encodeJob{
			id:   m.ID,
			text: fmt.Sprintf("Title: %s | Genres: %s", m.Title, m.Genres),
			metadata: map[string]any{
				fieldTitle:  m.Title,
				fieldGenres: m.Genres,
			},
		}
	}

	docs, err := e.encodeAll(ctx, jobs)
	if err != nil {
		return err
	}

	return e.upsertBatches(ctx, e.coll.Movies, docs)
}

// rebuildRatings needs no encoding: a rating record's embedding is the
// one-element vector holding the rating value, which makes nearest-rating
// lookups possible while keeping the record filterable by user.
func (e *Engine) rebuildRatings(ctx context.Context) error {
	docs := make([]vector.Document, len(e.ratings))
	for i, r := range e.ratings {
		docs[i] = vector.Document{
			ID:        r.UserID + "_" + r.MovieID,
			Embedding: []float32{float32(r.Value)},
			Metadata: map[string]any{
				fieldUserID:  r.UserID,
				fieldMovieID: r.MovieID,
				fieldRating:  r.Value,
			},
		}
	}

	return e.upsertBatches(ctx, e.coll.Ratings, docs)
}

func (e *Engine) rebuildProfiles(ctx context.Context) error {
	profiles := profile.Build(e.catalog, e.ratings)
	jobs := make([]encodeJob, len(profiles))
	for i, p := range profiles {
		jobs[i] = encodeJob{
			id:   p.UserID,
			text: p.Description(),
			metadata: map[string]any{
				fieldDescription: p.Description(),
				fieldMovies:      p.Titles(),
				fieldGenres:      p.Genres(),
				fieldRating:      p.MeanRating,
			},
		}
	}

	docs, err := e.encodeAll(ctx, jobs)
	if err != nil {
		return err
	}

	return e.upsertBatches(ctx, e.coll.Profiles, docs)
}

// encodeJob is one pending embedding call.
type encodeJob struct {
	idx      int
	id       string
	text     string
	metadata map[string]any
}

// encodeAll embeds every job's text on a pool of RebuildWorkers goroutines.
// Each worker writes to its own result slot, so no locking is needed; the
// first failure cancels the pool and is returned.
func (e *Engine) encodeAll(ctx context.Context, jobs []encodeJob) ([]vector.Document, error) {
	docs := make([]vector.Document, len(jobs))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobCh := make(chan encodeJob)

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	wg.Add(e.opts.RebuildWorkers)
	for w := 0; w < e.opts.RebuildWorkers; w++ {
		go func(id int) {
			defer wg.Done()
			for job := range jobCh {
				embedding, err := e.embedder.Embed(ctx, job.text)
				if err != nil {
					fail(fmt.Errorf("encoding %s: %w", job.id, err))
					return
				}
				docs[job.idx] = vector.Document{
					ID:        job.id,
					Embedding: embedding,
					Metadata:  job.metadata,
				}
			}
		}(w)
	}

feed:
	for i := range jobs {
		jobs[i].idx = i
		select {
		case <-ctx.Done():
			break feed
		case jobCh <- jobs[i]:
		}
	}
	close(jobCh)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}

// upsertBatches writes docs to the collection in serial batches, checking
// for cancellation between batches.
func (e *Engine) upsertBatches(ctx context.Context, coll vector.Collection, docs []vector.Document) error {
	for start := 0; start < len(docs); start += upsertBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + upsertBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		if err := coll.Upsert(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}
