// Package testutil provides shared fixtures for tests that drive a loop:
// a running loop bound to the test's lifetime and a callback that records
// every notification it receives.
package testutil
