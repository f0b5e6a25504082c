package movielens_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/movielens"
)

const moviesCSV = `movieId,title,genres
1,Toy Story (1995),Adventure|Animation|Children|Comedy|Fantasy
2,Jumanji (1995),Adventure|Children|Fantasy
3,"American President, The (1995)",Comedy|Drama|Romance
`

const ratingsCSV = `userId,movieId,rating,timestamp
1,1,4.0,964982703
1,3,4.5,964981247
2,1,3.0,964982224
`

var _ = Describe("ReadMovies", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	It("parses rows and skips the header", func() {
		movies, err := movielens.ReadMovies(strings.NewReader(moviesCSV), logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(movies).To(HaveLen(3))
		Expect(movies[0].ID).To(Equal("1"))
		Expect(movies[0].Title).To(Equal("Toy Story (1995)"))
		Expect(movies[0].Genres).To(Equal("Adventure|Animation|Children|Comedy|Fantasy"))
	})

	It("handles quoted titles containing commas", func() {
		movies, err := movielens.ReadMovies(strings.NewReader(moviesCSV), logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(movies[2].Title).To(Equal("American President, The (1995)"))
	})

	It("skips malformed rows instead of failing", func() {
		input := "movieId,title,genres\n5,Only Title\n6,Heat (1995),Action|Crime|Thriller\n"
		movies, err := movielens.ReadMovies(strings.NewReader(input), logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(movies).To(HaveLen(1))
		Expect(movies[0].ID).To(Equal("6"))
	})
})

var _ = Describe("ReadRatings", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	It("parses rows in file order", func() {
		ratings, err := movielens.ReadRatings(strings.NewReader(ratingsCSV), logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(ratings).To(HaveLen(3))
		Expect(ratings[0]).To(Equal(movielens.Rating{UserID: "1", MovieID: "1", Value: 4.0}))
		Expect(ratings[1]).To(Equal(movielens.Rating{UserID: "1", MovieID: "3", Value: 4.5}))
	})

	It("skips rows with non-numeric ratings", func() {
		input := "userId,movieId,rating\n1,1,bad\n1,2,2.5\n"
		ratings, err := movielens.ReadRatings(strings.NewReader(input), logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(ratings).To(HaveLen(1))
		Expect(ratings[0].Value).To(Equal(2.5))
	})
})

var _ = Describe("Catalog", func() {
	var catalog *movielens.Catalog

	BeforeEach(func() {
		logger := zap.NewNop()
		movies, err := movielens.ReadMovies(strings.NewReader(moviesCSV), logger)
		Expect(err).NotTo(HaveOccurred())
		catalog = movielens.NewCatalog(movies)
	})

	It("finds movies by id", func() {
		m, ok := catalog.FindByID("2")
		Expect(ok).To(BeTrue())
		Expect(m.Title).To(Equal("Jumanji (1995)"))
	})

	It("finds movies by title case-insensitively", func() {
		m, ok := catalog.FindByTitle("toy story (1995)")
		Expect(ok).To(BeTrue())
		Expect(m.ID).To(Equal("1"))
	})

	It("reports missing titles", func() {
		_, ok := catalog.FindByTitle("No Such Movie")
		Expect(ok).To(BeFalse())
	})

	It("splits genre lists", func() {
		m, _ := catalog.FindByID("1")
		Expect(m.GenreList()).To(ConsistOf("Adventure", "Animation", "Children", "Comedy", "Fantasy"))
	})
})
