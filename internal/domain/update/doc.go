// Package update contains core domain types for the update orchestration logic.
//
// It defines Status (the phase of an operation), Record (the single persisted
// state object) and Lease (a time-bounded claim on the update slot) with Clone
// helpers to avoid leaking internal references.
package update
