// Package testutil holds the fake platform backend and fixtures shared by
// package tests. It is never imported by production code.
package testutil
