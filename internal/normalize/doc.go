// Package normalize maps loosely-typed lender product records, as returned by
// the different versions of the staff catalog API, onto catalog.Product.
//
// Every field is resolved through an ordered list of accessors. The first
// accessor whose path is present and non-empty wins, so a record that carries
// both "lender" and "lenderName" resolves to "lender". Normalization is a
// total function: any JSON value, including non-objects, yields a fully
// populated product.
package normalize
