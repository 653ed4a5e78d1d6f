// Package flow decodes flow documents submitted by clients.
//
// A flow is an ordered chain of external programs that share a single set of
// input, output and error files. Parameter values arrive already resolved to
// literal strings; the package only checks structural consistency.
package flow
