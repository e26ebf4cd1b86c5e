// Package outboxcore provides the application lifecycle primitives (App,
// Launcher) used to compose the outbox dispatcher binary together with its
// supporting goroutines.
//
// Typical usage in a cmd/ entrypoint:
//
//	launcher := outboxcore.NewLauncher(outboxcore.WithLogger(logger))
//	launcher.Run()
//
// Domain logic lives in the outbox package; storage and ledger adapters live
// in outbox/postgres and ledger/solanarpc respectively.
package outboxcore
