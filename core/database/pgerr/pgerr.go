// Package pgerr classifies PostgreSQL errors returned through lib/pq.
package pgerr

import (
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE codes the bot reacts to.
const (
	UniqueViolation  = "23505"
	DuplicateTable   = "42P07"
	QueryCanceled    = "57014"
	LockNotAvailable = "55P03"
)

// Code returns the SQLSTATE carried by err, or "" when err is not a *pq.Error.
func Code(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsUniqueViolation reports a unique or primary key conflict.
func IsUniqueViolation(err error) bool {
	return Code(err) == UniqueViolation
}

// IsTimeout reports statement_timeout or lock_timeout cancellation.
func IsTimeout(err error) bool {
	switch Code(err) {
	case QueryCanceled, LockNotAvailable:
		return true
	}
	return false
}
