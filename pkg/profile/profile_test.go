package profile_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reelpick/reel/pkg/movielens"
	"github.com/reelpick/reel/pkg/profile"
)

func scenarioCatalog() *movielens.Catalog {
	return movielens.NewCatalog([]movielens.Movie{
		{ID: "1", Title: "A", Genres: "Action"},
		{ID: "2", Title: "B", Genres: "Action|Comedy"},
	})
}

var _ = Describe("Build", func() {
	It("aggregates the reference scenario", func() {
		ratings := []movielens.Rating{
			{UserID: "u1", MovieID: "1", Value: 5.0},
			{UserID: "u1", MovieID: "2", Value: 3.0},
		}

		profiles := profile.Build(scenarioCatalog(), ratings)
		Expect(profiles).To(HaveLen(1))

		p := profiles[0]
		Expect(p.UserID).To(Equal("u1"))
		Expect(p.TitleSequence).To(Equal([]string{"A", "B"}))
		Expect(p.GenreSet).To(ConsistOf("Action", "Comedy"))
		Expect(p.MeanRating).To(Equal(4.0))
	})

	It("renders the scenario description with exact delimiters", func() {
		ratings := []movielens.Rating{
			{UserID: "u1", MovieID: "1", Value: 5.0},
			{UserID: "u1", MovieID: "2", Value: 3.0},
		}

		p := profile.Build(scenarioCatalog(), ratings)[0]
		Expect(p.Description()).To(Equal(
			"Movies: A | B | Genres: Action | Comedy | Average Rating: 4.00"))
	})

	It("is deterministic across repeated runs", func() {
		ratings := []movielens.Rating{
			{UserID: "u1", MovieID: "2", Value: 2.5},
			{UserID: "u1", MovieID: "1", Value: 4.5},
			{UserID: "u1", MovieID: "2", Value: 3.5},
		}

		first := profile.Build(scenarioCatalog(), ratings)
		for range 20 {
			again := profile.Build(scenarioCatalog(), ratings)
			Expect(again[0].TitleSequence).To(Equal(first[0].TitleSequence))
			Expect(again[0].MeanRating).To(Equal(first[0].MeanRating))
			Expect(again[0].GenreSet).To(ConsistOf(first[0].GenreSet))
		}
	})

	It("preserves duplicate titles in encounter order", func() {
		ratings := []movielens.Rating{
			{UserID: "u1", MovieID: "2", Value: 1.0},
			{UserID: "u1", MovieID: "2", Value: 2.0},
			{UserID: "u1", MovieID: "1", Value: 3.0},
		}

		p := profile.Build(scenarioCatalog(), ratings)[0]
		Expect(p.TitleSequence).To(Equal([]string{"B", "B", "A"}))
	})

	It("falls back to Unknown when no titles resolve", func() {
		ratings := []movielens.Rating{
			{UserID: "u9", MovieID: "404", Value: 3.0},
		}

		p := profile.Build(scenarioCatalog(), ratings)[0]
		Expect(p.Titles()).To(Equal("Unknown"))
		Expect(p.Genres()).To(Equal("Unknown"))
		Expect(p.Description()).To(Equal(
			"Movies: Unknown | Genres: Unknown | Average Rating: 3.00"))
	})

	It("keeps users in first-encounter order", func() {
		ratings := []movielens.Rating{
			{UserID: "u2", MovieID: "1", Value: 1.0},
			{UserID: "u1", MovieID: "2", Value: 2.0},
			{UserID: "u2", MovieID: "2", Value: 3.0},
		}

		profiles := profile.Build(scenarioCatalog(), ratings)
		Expect(profiles).To(HaveLen(2))
		Expect(profiles[0].UserID).To(Equal("u2"))
		Expect(profiles[1].UserID).To(Equal("u1"))
		Expect(profiles[0].MeanRating).To(Equal(2.0))
	})
})

var _ = Describe("ParseDescription", func() {
	It("round-trips a well-formed description", func() {
		p := profile.ParseDescription(
			"Movies: A | B | Genres: Action | Comedy | Average Rating: 4.00")
		Expect(p.Movies).To(Equal("A | B"))
		Expect(p.Genres).To(Equal("Action | Comedy"))
		Expect(p.Rating).To(Equal("4.00"))
	})

	It("maps a missing genres delimiter to Unknown", func() {
		p := profile.ParseDescription("Movies: A | B")
		Expect(p.Movies).To(Equal("A | B"))
		Expect(p.Genres).To(Equal("Unknown"))
		Expect(p.Rating).To(Equal("N/A"))
	})

	It("maps a non-numeric rating to N/A", func() {
		p := profile.ParseDescription(
			"Movies: A | Genres: Action | Average Rating: not-a-number")
		Expect(p.Movies).To(Equal("A"))
		Expect(p.Genres).To(Equal("Action"))
		Expect(p.Rating).To(Equal("N/A"))
	})

	It("never fails on arbitrary input", func() {
		p := profile.ParseDescription("")
		Expect(p.Movies).To(Equal(""))
		Expect(p.Genres).To(Equal("Unknown"))
		Expect(p.Rating).To(Equal("N/A"))
	})
})
