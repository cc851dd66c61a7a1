// Package sources retrieves the raw lender catalog.
//
// A CatalogSource returns the records of one catalog generation as gjson
// values, leaving field resolution to the normalize package. Two sources
// exist:
//
//   - apiSource fetches GET <endpoint>/public/lenders from the staff API,
//     retrying transient failures with exponential backoff
//   - fileSource reads a JSON document from the local filesystem, for
//     development and air-gapped deployments
//
// Both accept the same response shapes (see ExtractRecords) and compute the
// same change-detection hash over the record ids.
package sources
