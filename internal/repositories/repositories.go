// package repositories provides persistence for the cached upstream state
// and authorization records.
//
// All mutations are upsert-by-key operations so concurrent writers converge
// without explicit locking: the current-song table carries its monotonic
// start-time guard inside the SQL itself, and the stream status and
// connection tables are last-writer-wins.
package repositories
