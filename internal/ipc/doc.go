// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Every
// call runs with a fresh request id on its context so daemon log lines can be
// correlated with the CLI invocation that caused them.
package ipc
