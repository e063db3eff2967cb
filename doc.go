// Package sharedevent provides a cross-process shared event bus for a
// single host: multiple independent processes that agree on a common
// channel name can publish typed event messages to each other and register
// in-process callbacks that fire whenever any participant emits.
//
// The bus is built for low-frequency control-plane notifications (for
// example "transaction range added / removed / cleared") rather than
// high-throughput data transport. A single emitted message is held in a
// shared-memory payload segment and fanned out to every live listener
// using a per-listener pair of named synchronization primitives; a listener
// that crashes without unregistering is detected and evicted by the next
// publisher rather than blocking it forever.
//
// # Joining a channel
//
//	ch, err := sharedevent.Open("transactions", sharedevent.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ch.Close()
//
//	ch.RegisterCallback(func(msg sharedevent.TransactionEvent) {
//		fmt.Println("received", msg)
//	})
//
//	err = ch.Emit(sharedevent.TransactionEvent{Type: sharedevent.TransactionsAdded})
//
// Emit wakes every registered participant, including the caller; call
// EmitSuppressingSelf instead when the caller already knows the value it
// just published and only wants other participants notified.
//
// # Engines
//
// The core protocol (registration, roster bookkeeping, the publish/
// read-complete handshake, crash recovery) is platform code built on
// POSIX named shared memory and advisory file locks — see platform_linux.go
// for the concrete primitives and DESIGN.md for why that substitutes for
// the original Windows named kernel objects without changing any of the
// protocol's invariants.
package sharedevent
