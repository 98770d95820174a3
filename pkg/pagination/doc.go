// Package pagination drives a screening request across the pages of the
// remote search service and accumulates the normalized records.
//
// The service reports an authoritative totalCount with every page. The
// controller keeps an effective target, min(requested target, reported
// total), that can only shrink once the first page is seen, and stops when:
//   - the accumulated records reach the effective target, or
//   - a page comes back with zero hits.
//
// Records are appended in page order and otherwise only grow. The one
// exception is a total that shrinks mid-retrieval below what was already
// accumulated: the result is cut back to the new effective target so it
// never holds more records than the service last claimed to have.
//
// Pages are fetched strictly one after another with a 1-indexed cursor.
// The context is checked at every page boundary, so a caller can abort a
// long retrieval between pages. Any dispatch, decoding or adaptation
// failure aborts the whole call; no partial result is returned.
//
// Example usage:
//
//	ctrl := pagination.NewController(dispatcher, record.NewAdapter(), pagination.DefaultConfig())
//	records, err := ctrl.Retrieve(ctx, req, 100)
package pagination
