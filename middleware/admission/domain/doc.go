// Package domain defines the types and contracts of request admission:
// verdicts, per-client block and window entries, and the store contract
// the controller runs its read-modify-write against.
//
// This package does not depend on net/http or on concrete stores, so the
// admission rules can be unit tested with plain values.
package domain
