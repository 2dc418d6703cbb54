// Package auth implements the authentication core for multi-tenant clinic
// applications: a session state machine that reconciles a hosted identity
// provider, per-clinic worker logins, and an OAuth popup flow used both for
// sign-in and for attaching a calendar account to an existing clinic worker.
//
// State machine:
//   - StateMachine owns the current AuthState and AuthSession. Hosts construct
//     one instance at startup with their IdentityProvider, Backend, and
//     PopupCoordinator collaborators, call Initialize once at boot, and render
//     or route off the (state, session) pairs delivered to subscribers. The
//     machine never navigates; see the navigate package for a router adapter.
//   - Sessions are replaced wholesale on every transition and persisted through
//     SessionStore, so a clinic context survives process restarts even when no
//     live provider session exists.
//
// Persistence:
//   - SessionStore is a thin typed layer over a durable key/value Store.
//     Backends for bun/sqlite, Redis, and in-memory use live in the store
//     package. Corrupt entries decode as absent, never as errors.
//
// Popup coordination:
//   - The popup package drives the OAuth authorization window: it opens the
//     URL, waits for the completion message, enforces the timeout, and hands
//     the resulting provider session back to the machine.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter the machine uses to
//     describe sign-in, link, and sign-out events. Sinks run best-effort
//     (errors are logged) so you can forward to a database or queue without
//     blocking authentication.
package auth
