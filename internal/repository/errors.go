package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate is returned when an insert collides with a unique index.
	ErrDuplicate = errors.New("duplicate record")
	// ErrSeatUnavailable is returned when a course has no seat left to allocate.
	ErrSeatUnavailable = errors.New("no seat available")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
