package profile

import (
	"strconv"
	"strings"
)

const (
	genresDelim = "| Genres:"
	ratingDelim = "| Average Rating:"
	moviesPfx   = "Movies: "

	// RatingNA stands in for a rating that could not be recovered.
	RatingNA = "N/A"
)

// Parsed holds the fields recovered from a stored description string.
// Fields that cannot be extracted degrade to "Unknown" (or "N/A" for the
// rating); extraction never fails.
type Parsed struct {
	Movies string
	Genres string
	Rating string
}

// ParseDescription splits a description produced by UserProfile.Description
// back into its fields. The grammar is fixed: split on "| Genres:" then on
// "| Average Rating:". A missing delimiter maps that field to its fallback,
// and a non-numeric rating substring maps to "N/A".
func ParseDescription(description string) Parsed {
	p := Parsed{
		Movies: UnknownToken,
		Genres: UnknownToken,
		Rating: RatingNA,
	}

	if strings.Contains(description, genresDelim) {
		p.Movies = strings.TrimSpace(strings.TrimPrefix(
			strings.SplitN(description, genresDelim, 2)[0], moviesPfx))
	} else {
		p.Movies = strings.TrimSpace(strings.TrimPrefix(description, moviesPfx))
	}

	if strings.Contains(description, genresDelim) && strings.Contains(description, ratingDelim) {
		after := strings.SplitN(description, genresDelim, 2)[1]
		p.Genres = strings.TrimSpace(strings.SplitN(after, ratingDelim, 2)[0])
	}

	if strings.Contains(description, ratingDelim) {
		raw := strings.TrimSpace(strings.SplitN(description, ratingDelim, 2)[1])
		if _, err := strconv.ParseFloat(raw, 64); err == nil {
			p.Rating = raw
		}
	}

	return p
}
