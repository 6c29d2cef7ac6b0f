// Package chat implements the concurrent session and group-membership
// coordinator of the line chat service.
//
// A Hub owns two independently locked registries: the SessionRegistry
// (connection -> authenticated username) and the GroupRegistry (group name ->
// member connections). Every accepted connection runs its own session state
// machine which authenticates, registers, feeds each input line to the
// Dispatcher and finally unregisters itself. Registry methods are the only
// way to touch shared state; they hand back snapshots so that network writes
// always happen outside any lock.
//
// When an operation needs both registries the Session Registry lock is
// taken first.
package chat
