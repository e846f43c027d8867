package db

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryable decides whether a failed Operation should be attempted again.
type IsRetryable func(err error) bool

const (
	DefaultMaxRetries = 3
	retryBackoffStep  = 50 * time.Millisecond
	duplicateKeyCode  = 11000
)

// Try runs op, retrying up to DefaultMaxRetries times on duplicate key errors.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// WithRetries runs op once plus at most maxRetries retries while retryable
// reports true, sleeping a little longer before each retry.
func WithRetries(op Operation, maxRetries int, retryable IsRetryable) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == maxRetries || !retryable(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * retryBackoffStep)
	}
	return err
}

// IsMongoDuplicateKeyError reports whether err carries write error code 11000.
func IsMongoDuplicateKeyError(err error) bool {
	return duplicateKeyIndex(err) != nil
}

// IsIDCollision reports a duplicate key on the _id index specifically.
func IsIDCollision(err error) bool {
	msg := duplicateKeyIndex(err)
	return msg != nil && strings.Contains(*msg, "index: _id_")
}

// IsDuplicateKeyOn reports a duplicate key on the named index, e.g. "quotation_id_1".
func IsDuplicateKeyOn(err error, index string) bool {
	msg := duplicateKeyIndex(err)
	return msg != nil && strings.Contains(*msg, "index: "+index+" ")
}

// duplicateKeyIndex returns the message of the first duplicate key write error.
func duplicateKeyIndex(err error) *string {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == duplicateKeyCode {
				return &e.Message
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == duplicateKeyCode {
				return &e.Message
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == duplicateKeyCode {
		return &ce.Message
	}
	return nil
}
