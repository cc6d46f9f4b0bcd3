// Package domain defines the core business types for the Lattice CRM engine.
//
// Types in this package are pure value objects with no behavior beyond
// validation and state-machine helpers. They are the shared language between
// handlers, services, and stores.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Pure functions on the types are allowed
//   - Constants and enums belong here
package domain
