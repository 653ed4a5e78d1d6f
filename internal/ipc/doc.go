// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// Every accepted connection gets its own service instance so notification
// clients subscribed through it are unregistered when the connection drops.
// Request and response types double as the wire protocol; extend them rather
// than changing existing fields so older CLIs keep working.
package ipc
