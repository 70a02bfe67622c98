package models

import "errors"

var (
	ErrInvalidRect        = errors.New("invalid rectangle")
	ErrInvalidObservation = errors.New("invalid observation")
	ErrDuplicateIdentity  = errors.New("duplicate track identity in frame")
)
