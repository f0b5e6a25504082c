package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/vector"
	"github.com/reelpick/reel/pkg/vector/sqlitevec"
)

var _ = Describe("Store", func() {
	var (
		logger *zap.Logger
		ctx    context.Context
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		ctx = context.Background()
	})

	newStore := func() *sqlitevec.Store {
		store, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: ":memory:"}, logger)
		Expect(err).NotTo(HaveOccurred())
		return store
	}

	Describe("NewStore", func() {
		It("requires a database path", func() {
			_, err := sqlitevec.NewStore(sqlitevec.Config{}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("opens an in-memory database", func() {
			store := newStore()
			Expect(store.Close()).To(Succeed())
		})
	})

	Describe("Collection", func() {
		It("is idempotent", func() {
			store := newStore()
			defer store.Close()

			first, err := store.Collection(ctx, "movies")
			Expect(err).NotTo(HaveOccurred())
			Expect(first).NotTo(BeNil())

			again, err := store.Collection(ctx, "movies")
			Expect(err).NotTo(HaveOccurred())
			Expect(again).NotTo(BeNil())
		})

		It("rejects names that cannot be table identifiers", func() {
			store := newStore()
			defer store.Close()

			_, err := store.Collection(ctx, "no; drop")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Upsert and Get", func() {
		var coll vector.Collection

		BeforeEach(func() {
			store := newStore()
			DeferCleanup(store.Close)

			var err error
			coll, err = store.Collection(ctx, "movies")
			Expect(err).NotTo(HaveOccurred())
		})

		It("round-trips embedding and metadata", func() {
			doc := vector.Document{
				ID:        "1",
				Embedding: []float32{0.1, 0.2, 0.3, 0.4},
				Metadata:  map[string]any{"title": "Toy Story (1995)", "rating": 4.5},
			}
			Expect(coll.Upsert(ctx, []vector.Document{doc})).To(Succeed())

			got, err := coll.Get(ctx, []string{"1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0]).NotTo(BeNil())
			Expect(got[0].Embedding).To(Equal([]float32{0.1, 0.2, 0.3, 0.4}))
			Expect(got[0].Metadata["title"]).To(Equal("Toy Story (1995)"))
			Expect(got[0].Metadata["rating"]).To(BeNumerically("==", 4.5))
		})

		It("preserves input order and yields nil for missing ids", func() {
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "a", Embedding: []float32{1, 0}},
				{ID: "b", Embedding: []float32{0, 1}},
			})).To(Succeed())

			got, err := coll.Get(ctx, []string{"b", "missing", "a"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(3))
			Expect(got[0].ID).To(Equal("b"))
			Expect(got[1]).To(BeNil())
			Expect(got[2].ID).To(Equal("a"))
		})

		It("replaces embedding and metadata together on re-upsert", func() {
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "1", Embedding: []float32{1, 1}, Metadata: map[string]any{"title": "old"}},
			})).To(Succeed())
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "1", Embedding: []float32{2, 2}, Metadata: map[string]any{"title": "new"}},
			})).To(Succeed())

			got, err := coll.Get(ctx, []string{"1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got[0].Embedding).To(Equal([]float32{2, 2}))
			Expect(got[0].Metadata["title"]).To(Equal("new"))

			n, err := coll.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("rejects embeddings with the wrong dimension without mutating", func() {
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "1", Embedding: []float32{1, 2, 3}},
			})).To(Succeed())

			err := coll.Upsert(ctx, []vector.Document{
				{ID: "2", Embedding: []float32{1, 2}},
			})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))

			n, err := coll.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("rejects metadata values that are not strings or numbers", func() {
			err := coll.Upsert(ctx, []vector.Document{
				{ID: "1", Embedding: []float32{1}, Metadata: map[string]any{"bad": []string{"x"}}},
			})
			Expect(err).To(MatchError(vector.ErrMetadata))
		})

		It("does nothing for an empty batch", func() {
			Expect(coll.Upsert(ctx, nil)).To(Succeed())
		})
	})

	Describe("Query", func() {
		var coll vector.Collection

		BeforeEach(func() {
			store := newStore()
			DeferCleanup(store.Close)

			var err error
			coll, err = store.Collection(ctx, "movies")
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the single record as its own nearest neighbor", func() {
			doc := vector.Document{ID: "only", Embedding: []float32{0.6, 0.8}}
			Expect(coll.Upsert(ctx, []vector.Document{doc})).To(Succeed())

			results, err := coll.Query(ctx, []float32{0.6, 0.8}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("only"))
			Expect(results[0].Distance).To(BeNumerically("~", 0.0, 1e-5))
		})

		It("orders results by ascending distance", func() {
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "near", Embedding: []float32{1, 0.1}},
				{ID: "far", Embedding: []float32{-1, 0}},
				{ID: "exact", Embedding: []float32{1, 0}},
			})).To(Succeed())

			results, err := coll.Query(ctx, []float32{1, 0}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].ID).To(Equal("exact"))
			Expect(results[1].ID).To(Equal("near"))
			Expect(results[2].ID).To(Equal("far"))
		})

		It("breaks distance ties by ascending id", func() {
			// Same vector twice: identical cosine distance to any query.
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "b", Embedding: []float32{1, 1}},
				{ID: "a", Embedding: []float32{1, 1}},
			})).To(Succeed())

			results, err := coll.Query(ctx, []float32{1, 1}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("a"))
			Expect(results[1].ID).To(Equal("b"))
		})

		It("returns all records when the collection holds fewer than k", func() {
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "1", Embedding: []float32{1, 0}},
				{ID: "2", Embedding: []float32{0, 1}},
			})).To(Succeed())

			results, err := coll.Query(ctx, []float32{1, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("returns nothing for a never-populated collection", func() {
			results, err := coll.Query(ctx, []float32{1, 0}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("GetByFilter", func() {
		It("returns records matching a metadata field in insertion order", func() {
			store := newStore()
			defer store.Close()

			coll, err := store.Collection(ctx, "ratings")
			Expect(err).NotTo(HaveOccurred())

			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "u1_1", Embedding: []float32{5}, Metadata: map[string]any{"userId": "u1", "rating": 5.0}},
				{ID: "u2_1", Embedding: []float32{3}, Metadata: map[string]any{"userId": "u2", "rating": 3.0}},
				{ID: "u1_2", Embedding: []float32{4}, Metadata: map[string]any{"userId": "u1", "rating": 4.0}},
			})).To(Succeed())

			docs, err := coll.GetByFilter(ctx, "userId", "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].ID).To(Equal("u1_1"))
			Expect(docs[1].ID).To(Equal("u1_2"))
		})
	})

	Describe("Clear", func() {
		It("removes every record and unpins the dimension", func() {
			store := newStore()
			defer store.Close()

			coll, err := store.Collection(ctx, "movies")
			Expect(err).NotTo(HaveOccurred())

			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "1", Embedding: []float32{1, 2}},
			})).To(Succeed())
			Expect(coll.Clear(ctx)).To(Succeed())

			n, err := coll.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			// A different dimension is accepted after a clear.
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "1", Embedding: []float32{1, 2, 3}},
			})).To(Succeed())
		})
	})

	Describe("persistence", func() {
		It("survives a store reopen", func() {
			dir := GinkgoT().TempDir()
			path := dir + "/reel.db"

			store, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: path}, logger)
			Expect(err).NotTo(HaveOccurred())

			coll, err := store.Collection(ctx, "movies")
			Expect(err).NotTo(HaveOccurred())
			Expect(coll.Upsert(ctx, []vector.Document{
				{ID: "1", Embedding: []float32{1, 0}, Metadata: map[string]any{"title": "A"}},
			})).To(Succeed())
			Expect(store.Close()).To(Succeed())

			reopened, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: path}, logger)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			coll, err = reopened.Collection(ctx, "movies")
			Expect(err).NotTo(HaveOccurred())

			got, err := coll.Get(ctx, []string{"1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got[0]).NotTo(BeNil())
			Expect(got[0].Metadata["title"]).To(Equal("A"))
		})
	})

	Describe("Interface compliance", func() {
		It("implements vector.Store and vector.Collection", func() {
			var _ vector.Store = (*sqlitevec.Store)(nil)
			var _ vector.Collection = (*sqlitevec.Collection)(nil)
		})
	})
})
