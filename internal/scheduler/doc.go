// Package scheduler triggers periodic full scans of every catalog unit.
package scheduler
