// Package profile reduces per-user rating rows into deterministic textual and
// structured user profiles used as the text basis for user embeddings.
package profile

import (
	"fmt"
	"strings"

	"github.com/reelpick/reel/pkg/movielens"
)

const (
	// JoinToken separates titles and genre tags inside a description.
	JoinToken = " | "

	// UnknownToken stands in for titles or genres that could not be resolved.
	UnknownToken = "Unknown"
)

// UserProfile is the derived per-user summary. TitleSequence preserves
// duplicates in rating encounter order. GenreSet is deduplicated in
// first-encounter order so that Description output is stable across runs.
type UserProfile struct {
	UserID        string
	TitleSequence []string
	GenreSet      []string
	MeanRating    float64
}

// Titles joins the title sequence, falling back to "Unknown" when the user
// has no resolvable movie titles.
func (p UserProfile) Titles() string {
	if len(p.TitleSequence) == 0 {
		return UnknownToken
	}
	return strings.Join(p.TitleSequence, JoinToken)
}

// Genres joins the genre set, falling back to "Unknown".
func (p UserProfile) Genres() string {
	if len(p.GenreSet) == 0 {
		return UnknownToken
	}
	return strings.Join(p.GenreSet, JoinToken)
}

// Description renders the stable textual profile. Downstream parsing depends
// on these exact delimiters; see ParseDescription.
func (p UserProfile) Description() string {
	return fmt.Sprintf("Movies: %s | Genres: %s | Average Rating: %.2f",
		p.Titles(), p.Genres(), p.MeanRating)
}

// Build groups rating rows by user and derives one profile per user. Users
// appear in first-encounter order; rows within a user keep their original
// relative order. Ratings referencing movies missing from the catalog still
// count toward the mean but contribute no title or genres.
func Build(catalog *movielens.Catalog, ratings []movielens.Rating) []UserProfile {
	index := make(map[string]int)
	var profiles []UserProfile
	sums := make(map[string]float64)
	counts := make(map[string]int)
	seenGenre := make(map[string]map[string]bool)

	for _, r := range ratings {
		i, ok := index[r.UserID]
		if !ok {
			i = len(profiles)
			index[r.UserID] = i
			profiles = append(profiles, UserProfile{UserID: r.UserID})
			seenGenre[r.UserID] = make(map[string]bool)
		}

		sums[r.UserID] += r.Value
		counts[r.UserID]++

		movie, ok := catalog.FindByID(r.MovieID)
		if !ok {
			continue
		}

		profiles[i].TitleSequence = append(profiles[i].TitleSequence, movie.Title)
		for _, g := range movie.GenreList() {
			if g == "" || seenGenre[r.UserID][g] {
				continue
			}
			seenGenre[r.UserID][g] = true
			profiles[i].GenreSet = append(profiles[i].GenreSet, g)
		}
	}

	for i := range profiles {
		id := profiles[i].UserID
		profiles[i].MeanRating = sums[id] / float64(counts[id])
	}

	return profiles
}
