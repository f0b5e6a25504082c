package recommend_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/movielens"
	"github.com/reelpick/reel/pkg/recommend"
	"github.com/reelpick/reel/pkg/vector"
	"github.com/reelpick/reel/pkg/vector/sqlitevec"
)

// stubEmbedder embeds text as keyword counts over three genre axes plus a
// constant bias, so cosine distances between fixture texts are predictable.
type stubEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, errors.New("embed failed")
	}

	count := func(keyword string) float32 {
		return float32(strings.Count(text, keyword))
	}
	return []float32{count("Action"), count("Comedy"), count("Drama"), 1}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	rows := make([][]float32, len(texts))
	for i, text := range texts {
		row, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

func (s *stubEmbedder) Close() error { return nil }

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		store    *sqlitevec.Store
		coll     recommend.Collections
		embedder *stubEmbedder
		engine   *recommend.Engine
	)

	fixtureMovies := []movielens.Movie{
		{ID: "m1", Title: "Heat", Genres: "Action"},
		{ID: "m2", Title: "Airplane!", Genres: "Comedy"},
		{ID: "m3", Title: "Speed", Genres: "Action|Drama"},
	}

	fixtureRatings := []movielens.Rating{
		{UserID: "u1", MovieID: "m1", Value: 5},
		{UserID: "u1", MovieID: "m3", Value: 3},
		{UserID: "u2", MovieID: "m1", Value: 4},
		{UserID: "u3", MovieID: "m2", Value: 2},
		{UserID: "u4", MovieID: "m3", Value: 4},
		{UserID: "u4", MovieID: "m1", Value: 4},
	}

	newEngine := func(opts recommend.Options) *recommend.Engine {
		e, err := recommend.NewEngine(&recommend.Config{
			Catalog:     movielens.NewCatalog(fixtureMovies),
			Ratings:     fixtureRatings,
			Collections: coll,
			Embedder:    embedder,
			Options:     opts,
			Logger:      zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		store, err = sqlitevec.NewStore(sqlitevec.Config{DBPath: ":memory:"}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		for name, dst := range map[string]*vector.Collection{
			"movies":   &coll.Movies,
			"ratings":  &coll.Ratings,
			"profiles": &coll.Profiles,
		} {
			*dst, err = store.Collection(ctx, name)
			Expect(err).NotTo(HaveOccurred())
		}

		embedder = &stubEmbedder{}
		engine = newEngine(recommend.Options{})

		_, err = engine.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Rebuild", func() {
		It("populates all three collections", func() {
			stats, err := engine.Rebuild(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Movies).To(Equal(3))
			Expect(stats.Ratings).To(Equal(6))
			Expect(stats.Profiles).To(Equal(4))
		})

		It("is idempotent across runs", func() {
			first, err := engine.Rebuild(ctx)
			Expect(err).NotTo(HaveOccurred())
			second, err := engine.Rebuild(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("stops on the first encoding failure", func() {
			embedder.failOn = "Airplane"

			_, err := engine.Rebuild(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("rebuilding movies"))
		})

		It("stores profile descriptions alongside structured fields", func() {
			docs, err := coll.Profiles.Get(ctx, []string{"u1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs[0]).NotTo(BeNil())
			Expect(docs[0].Metadata["description"]).To(Equal(
				"Movies: Heat | Speed | Genres: Action | Drama | Average Rating: 4.00"))
			Expect(docs[0].Metadata["movies"]).To(Equal("Heat | Speed"))
			Expect(docs[0].Metadata["genres"]).To(Equal("Action | Drama"))
			Expect(docs[0].Metadata["rating"]).To(Equal(4.0))
		})
	})

	Describe("SimilarUsers", func() {
		It("ranks the queried user first, nearest profiles after", func() {
			matches, err := engine.SimilarUsers(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, len(matches))
			for i, m := range matches {
				ids[i] = m.UserID
			}
			// u4 shares u1's exact genre profile; the distance tie against
			// u1 itself breaks by ascending user id.
			Expect(ids).To(Equal([]string{"u1", "u4", "u2", "u3"}))
		})

		It("returns structured profile fields", func() {
			matches, err := engine.SimilarUsers(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())

			Expect(matches[0].Movies).To(Equal("Heat | Speed"))
			Expect(matches[0].Genres).To(Equal("Action | Drama"))
			Expect(matches[0].Rating).To(Equal("4.00"))
		})

		It("drops the self match when IncludeSelf is false", func() {
			e := newEngine(recommend.Options{IncludeSelf: false})

			matches, err := e.SimilarUsers(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())

			for _, m := range matches {
				Expect(m.UserID).NotTo(Equal("u1"))
			}
			Expect(matches[0].UserID).To(Equal("u4"))
		})

		It("falls back to parsing the description for legacy records", func() {
			Expect(coll.Profiles.Upsert(ctx, []vector.Document{{
				ID:        "legacy",
				Embedding: []float32{0, 0, 0, 1},
				Metadata: map[string]any{
					"description": "Movies: X | Genres: Y | Average Rating: 3.50",
				},
			}})).To(Succeed())

			matches, err := engine.SimilarUsers(ctx, "legacy")
			Expect(err).NotTo(HaveOccurred())
			Expect(matches[0].UserID).To(Equal("legacy"))
			Expect(matches[0].Movies).To(Equal("X"))
			Expect(matches[0].Genres).To(Equal("Y"))
			Expect(matches[0].Rating).To(Equal("3.50"))
		})

		It("fails with ErrUserNotFound for an unknown user", func() {
			_, err := engine.SimilarUsers(ctx, "nobody")
			Expect(err).To(MatchError(recommend.ErrUserNotFound))
		})
	})

	Describe("SimilarMovies", func() {
		It("matches titles case-insensitively and ranks by genre distance", func() {
			matches, err := engine.SimilarMovies(ctx, "heat")
			Expect(err).NotTo(HaveOccurred())

			titles := make([]string, len(matches))
			for i, m := range matches {
				titles[i] = m.Title
			}
			Expect(titles).To(Equal([]string{"Heat", "Speed", "Airplane!"}))
			Expect(matches[0].MovieID).To(Equal("m1"))
			Expect(matches[1].Genres).To(Equal("Action|Drama"))
		})

		It("fails with ErrMovieNotFound for an unknown title", func() {
			_, err := engine.SimilarMovies(ctx, "Solaris")
			Expect(err).To(MatchError(recommend.ErrMovieNotFound))
		})
	})

	Describe("TopRated", func() {
		It("orders by descending rating", func() {
			ranked, err := engine.TopRated(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ranked).To(HaveLen(2))
			Expect(ranked[0]).To(Equal(recommend.RatedMovie{
				MovieID: "m1", Title: "Heat", Genres: "Action", Rating: 5,
			}))
			Expect(ranked[1].Title).To(Equal("Speed"))
			Expect(ranked[1].Rating).To(Equal(3.0))
		})

		It("breaks rating ties by ascending movie id", func() {
			ranked, err := engine.TopRated(ctx, "u4")
			Expect(err).NotTo(HaveOccurred())
			Expect(ranked[0].MovieID).To(Equal("m1"))
			Expect(ranked[1].MovieID).To(Equal("m3"))
		})

		It("truncates to TopK", func() {
			e := newEngine(recommend.Options{TopK: 1, IncludeSelf: true})

			ranked, err := e.TopRated(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ranked).To(HaveLen(1))
			Expect(ranked[0].Title).To(Equal("Heat"))
		})

		It("resolves dangling movie ids to Unknown", func() {
			Expect(coll.Ratings.Upsert(ctx, []vector.Document{{
				ID:        "u9_m99",
				Embedding: []float32{4.5},
				Metadata: map[string]any{
					"userId":  "u9",
					"movieId": "m99",
					"rating":  4.5,
				},
			}})).To(Succeed())

			ranked, err := engine.TopRated(ctx, "u9")
			Expect(err).NotTo(HaveOccurred())
			Expect(ranked[0].Title).To(Equal("Unknown"))
			Expect(ranked[0].Genres).To(Equal("Unknown"))
			Expect(ranked[0].Rating).To(Equal(4.5))
		})

		It("fails with ErrUserNotFound for a user with no ratings", func() {
			_, err := engine.TopRated(ctx, "nobody")
			Expect(err).To(MatchError(recommend.ErrUserNotFound))
		})
	})

	Describe("lookup failures", func() {
		It("leave the collections untouched", func() {
			before, err := coll.Profiles.Count(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.SimilarUsers(ctx, "nobody")
			Expect(err).To(MatchError(recommend.ErrUserNotFound))
			_, err = engine.TopRated(ctx, "nobody")
			Expect(err).To(MatchError(recommend.ErrUserNotFound))

			after, err := coll.Profiles.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})
	})
})
