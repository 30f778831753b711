// Package models defines the domain types handled by the bill agent.
//
// # Models
//
//   - Bill: a finalized sale, keyed by a client-generated ID
//   - LineItem: one priced entry on a bill
//   - UserTotal: one row of the per-user sales report
//
// Bills are identified by the ID the front end generated when the cart was
// finalized. The same ID is sent again when the client retries a request
// that timed out, so storage treats every write as a full replace.
//
// # Payloads
//
// The JSON document a bill arrived as is kept on Bill.Payload and stored
// verbatim. It is the authoritative copy used for reprints; the summary
// columns next to it in storage (user, total, created at) are derived.
package models
