// Package integration provides integration tests for the catalog sync service.
// These tests run the complete service against a mock staff API and check what
// the catalog API serves across successful and failed sync passes.
package integration
