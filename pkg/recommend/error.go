package recommend

import "errors"

var (
	// ErrUserNotFound indicates the user has no stored profile or ratings.
	ErrUserNotFound = errors.New("user not found")

	// ErrMovieNotFound indicates no catalog movie matched the given title.
	ErrMovieNotFound = errors.New("movie not found")
)
