package apperrors

import "errors"

// Domain entity errors represent missing or invalid entities in the system.
// These errors indicate that a requested resource does not exist.
var (
	// ErrPortfolioNotFound indicates that a portfolio with the given ID does not exist.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrConnectionNotFound indicates that a broker connection with the given ID does not exist.
	ErrConnectionNotFound = errors.New("broker connection not found")

	// ErrPositionNotFound indicates that a position with the given ID does not exist.
	ErrPositionNotFound = errors.New("position not found")

	// ErrSnapshotNotFound indicates that no portfolio snapshot has been committed yet.
	ErrSnapshotNotFound = errors.New("portfolio snapshot not found")

	// ErrCandidateNotFound indicates that a duplicate candidate with the given ID does not exist.
	ErrCandidateNotFound = errors.New("duplicate candidate not found")
)

// Reconciliation errors represent recoverable per-item failures accumulated
// during a reconciliation cycle. They are collected into the cycle's error
// report, never aborting the cycle on their own.
var (
	// ErrUnresolvedInstrument indicates a source record whose symbol could not be
	// resolved to a stable instrument key. The record is skipped.
	ErrUnresolvedInstrument = errors.New("unresolved instrument")

	// ErrConnectionFetch indicates that fetching positions from a broker
	// connection failed after its retry. The connection is marked errored for
	// the cycle; remaining connections proceed.
	ErrConnectionFetch = errors.New("connection fetch failed")

	// ErrMissingFxRate indicates no FX rate was available for a required
	// currency pair. The affected holding is converted 1:1 and flagged.
	ErrMissingFxRate = errors.New("missing fx rate")

	// ErrMissingPrice indicates no market price was available for an instrument.
	// The affected holding is valued at cost basis and flagged.
	ErrMissingPrice = errors.New("missing price")
)

// Cycle-fatal errors abort a reconciliation cycle without committing a snapshot.
// The previously committed snapshot remains authoritative.
var (
	// ErrAllConnectionsFailed indicates that every enabled broker connection
	// failed to fetch. No usable data means no snapshot.
	ErrAllConnectionsFailed = errors.New("all connections failed")

	// ErrSyncInProgress indicates that a reconciliation cycle is already running
	// for the portfolio. Surfaced immediately to the caller, never retried.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrCycleCancelled indicates the cycle was cancelled between phases.
	ErrCycleCancelled = errors.New("reconciliation cycle cancelled")
)

// Business logic errors represent validation failures or constraint violations.
var (
	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrEmptyID indicates that a required ID parameter is empty or missing.
	ErrEmptyID = errors.New("ID cannot be empty")

	// ErrNegativeQuantity indicates a position quantity below zero. Short
	// positions are not modelled.
	ErrNegativeQuantity = errors.New("quantity cannot be negative")

	// ErrInvalidBroker indicates an unknown broker identifier.
	ErrInvalidBroker = errors.New("invalid broker")

	// ErrInvalidResolution indicates an unknown resolution decision value.
	ErrInvalidResolution = errors.New("invalid resolution decision")

	// ErrCanonicalNotInGroup indicates a resolution named a canonical position
	// that is not part of the candidate's position group.
	ErrCanonicalNotInGroup = errors.New("canonical position not in candidate group")

	// ErrCanonicalRequired indicates a confirmed-duplicate verdict with no
	// position to keep: the candidate carries no detector pick and the request
	// named none.
	ErrCanonicalRequired = errors.New("canonical position required")

	// ErrCandidateResolved indicates a resolution was submitted for a candidate
	// that has already been resolved.
	ErrCandidateResolved = errors.New("candidate already resolved")
)

// Token errors represent failures around broker access token storage.
var (
	// ErrTokenNotFound indicates no stored access token for the connection.
	ErrTokenNotFound = errors.New("access token not found")

	// ErrTokenDecrypt indicates the stored access token could not be decrypted.
	ErrTokenDecrypt = errors.New("access token could not be decrypted")
)
