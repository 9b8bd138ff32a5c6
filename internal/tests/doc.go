// Package tests holds cross-package integration tests and benchmarks.
package tests
