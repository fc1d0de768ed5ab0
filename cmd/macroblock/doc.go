// Package main hosts the macroblock CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API, local analysis runs, history queries, and
// configuration scaffolding. It centralizes configuration resolution, daemon
// address discovery, and output rendering so subcommands can focus on user
// experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
// That separation keeps the CLI declarative while the heavy lifting lives in
// the gateway and detector packages.
package main
