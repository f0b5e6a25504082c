package chroma_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/vector"
	"github.com/reelpick/reel/pkg/vector/chroma"
)

// fakeChroma is a minimal in-process stand-in for the Chroma REST v2 API,
// covering the endpoints the driver touches.
type fakeChroma struct {
	ids        []string
	embeddings [][]float32
	metadatas  []map[string]any
}

func (f *fakeChroma) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/count"):
			json.NewEncoder(w).Encode(len(f.ids))

		case r.Method == http.MethodGet:
			// collection lookup by name
			json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": "profiles"})

		case r.Method == http.MethodDelete:
			f.ids, f.embeddings, f.metadatas = nil, nil, nil
			json.NewEncoder(w).Encode(map[string]string{})

		case strings.HasSuffix(r.URL.Path, "/collections"):
			json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": "profiles"})

		case strings.HasSuffix(r.URL.Path, "/upsert"):
			var req struct {
				IDs        []string         `json:"ids"`
				Embeddings [][]float32      `json:"embeddings"`
				Metadatas  []map[string]any `json:"metadatas"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			for i, id := range req.IDs {
				f.ids = append(f.ids, id)
				f.embeddings = append(f.embeddings, req.Embeddings[i])
				f.metadatas = append(f.metadatas, req.Metadatas[i])
			}
			json.NewEncoder(w).Encode(map[string]string{})

		case strings.HasSuffix(r.URL.Path, "/get"):
			var req struct {
				IDs []string `json:"ids"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			resp := struct {
				IDs        []string         `json:"ids"`
				Metadatas  []map[string]any `json:"metadatas"`
				Embeddings [][]float32      `json:"embeddings"`
			}{}
			for i, id := range f.ids {
				for _, want := range req.IDs {
					if id == want {
						resp.IDs = append(resp.IDs, id)
						resp.Metadatas = append(resp.Metadatas, f.metadatas[i])
						resp.Embeddings = append(resp.Embeddings, f.embeddings[i])
					}
				}
			}
			json.NewEncoder(w).Encode(resp)

		case strings.HasSuffix(r.URL.Path, "/query"):
			// Return everything at equal distance; the driver is responsible
			// for the deterministic tie-break.
			resp := struct {
				IDs       [][]string         `json:"ids"`
				Distances [][]float32        `json:"distances"`
				Metadatas [][]map[string]any `json:"metadatas"`
			}{
				IDs:       [][]string{f.ids},
				Distances: [][]float32{make([]float32, len(f.ids))},
				Metadatas: [][]map[string]any{f.metadatas},
			}
			json.NewEncoder(w).Encode(resp)

		default:
			http.Error(w, "unexpected request", http.StatusNotFound)
		}
	}
}

var _ = Describe("Store", func() {
	var (
		logger *zap.Logger
		ctx    context.Context
		fake   *fakeChroma
		server *httptest.Server
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		ctx = context.Background()
		fake = &fakeChroma{}
		server = httptest.NewServer(fake.handler())
		DeferCleanup(server.Close)
	})

	It("requires a URL", func() {
		_, err := chroma.NewStore(chroma.Config{}, logger)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
	})

	It("upserts and gets records preserving input order", func() {
		store, err := chroma.NewStore(chroma.Config{URL: server.URL}, logger)
		Expect(err).NotTo(HaveOccurred())

		coll, err := store.Collection(ctx, "profiles")
		Expect(err).NotTo(HaveOccurred())

		Expect(coll.Upsert(ctx, []vector.Document{
			{ID: "u1", Embedding: []float32{1, 0}, Metadata: map[string]any{"description": "d1"}},
			{ID: "u2", Embedding: []float32{0, 1}, Metadata: map[string]any{"description": "d2"}},
		})).To(Succeed())

		got, err := coll.Get(ctx, []string{"u2", "missing", "u1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(3))
		Expect(got[0].ID).To(Equal("u2"))
		Expect(got[1]).To(BeNil())
		Expect(got[2].Metadata["description"]).To(Equal("d1"))
	})

	It("rejects a wrong-dimension batch before any network write", func() {
		store, err := chroma.NewStore(chroma.Config{URL: server.URL}, logger)
		Expect(err).NotTo(HaveOccurred())

		coll, err := store.Collection(ctx, "profiles")
		Expect(err).NotTo(HaveOccurred())

		Expect(coll.Upsert(ctx, []vector.Document{
			{ID: "u1", Embedding: []float32{1, 0}},
		})).To(Succeed())

		err = coll.Upsert(ctx, []vector.Document{
			{ID: "u2", Embedding: []float32{1, 0, 0}},
		})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})

	It("breaks equal-distance ties by ascending id", func() {
		store, err := chroma.NewStore(chroma.Config{URL: server.URL}, logger)
		Expect(err).NotTo(HaveOccurred())

		coll, err := store.Collection(ctx, "profiles")
		Expect(err).NotTo(HaveOccurred())

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

	It("counts and clears", func() {
		store, err := chroma.NewStore(chroma.Config{URL: server.URL}, logger)
		Expect(err).NotTo(HaveOccurred())

		coll, err := store.Collection(ctx, "profiles")
		Expect(err).NotTo(HaveOccurred())

		Expect(coll.Upsert(ctx, []vector.Document{
			{ID: "u1", Embedding: []float32{1}},
		})).To(Succeed())

		n, err := coll.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))

		Expect(coll.Clear(ctx)).To(Succeed())

		n, err = coll.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})
})
