// Package assemble renders a flow document into the shell command line that
// runs it.
//
// Assembly validates the chain of programs as it goes. Every problem found is
// recorded as a human-readable issue; problems that make the flow unrunnable
// also mark the result critical and leave the command line empty. The output
// depends only on the document, the configured MPI flavors and the process
// count, so assembling the same request twice yields identical results.
package assemble
