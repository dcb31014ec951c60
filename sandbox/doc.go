// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// code submitted from a room. It supports multiple backends including
// Docker, Podman, and local execution (for development).
//
// Every execution writes the source into a shared work directory under a
// transient name, compiles it when the language needs a compile step, runs
// it under a deadline and removes every transient file afterwards, whatever
// the outcome. Failures are rendered with FormatDiagnostic, which echoes the
// offending source line when the toolchain output names one.
//
// The Dispatcher runs executions asynchronously with a concurrency bound and
// per-task cancellation.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	result, err := executor.Run(ctx, sandbox.Request{
//	    Language: "python",
//	    Source:   "print('Hello, World!')",
//	})
package sandbox
