// Package stores provides the SQLite run ledger. It records provisioning runs,
// the steps each run executed and the artifacts it produced, with schema
// migrations embedded in the binary.
package stores
