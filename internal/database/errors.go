package database

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification: record was updated by someone else")
	ErrDatesTaken             = errors.New("one or more dates are already booked")
	ErrDuplicate              = errors.New("record already exists")
)
