package scans

import "context"

// Invoker port (interface untuk eksekusi tool eksternal)
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (Execution, error)
}

// Adapter port: one scanner with its invocation contract and result parsing.
// Run never returns an error; every failure is expressed in the Result.
type Adapter interface {
	Kind() Kind
	Run(ctx context.Context, target Target) Result
}
