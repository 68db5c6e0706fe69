// Package matching identifies game paths against the registered metadata
// providers and merges their answers into catalog entries.
//
// Providers are queried concurrently and a failing provider only costs its
// own answer. Merging walks providers by descending priority: the first
// provider to supply a non-empty value for a field wins it and stamps the
// field's provenance. Cover and header candidates are the exception and are
// unioned across every contributing provider.
package matching
