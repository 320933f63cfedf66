// cmd/ribbit runs the Ribbit VM: a compressed bootstrap literal decoded
// into a symbol table and instruction graph, then interpreted to
// completion.
package main

import (
	"fmt"
	"os"

	"ribbit/internal/commands"
	"ribbit/internal/vmerrors"
)

// commandAliases mirrors the reference stack's short-alias convention.
var commandAliases = map[string]string{
	"r": "run",
	"i": "inspect",
	"t": "test",
}

func main() {
	args := os.Args[1:]

	cmd := "run"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	if cmd == "--help" || cmd == "-h" || cmd == "help" {
		showUsage()
		return
	}

	var err error
	switch cmd {
	case "run":
		err = commands.RunCommand(args, os.Stdin, os.Stdout, os.Stderr)
	case "inspect":
		err = commands.InspectCommand(args, os.Stdout, os.Stderr)
	case "test":
		err = commands.TestCommand(args, os.Stdout, os.Stderr)
	default:
		// A bare ribbit invocation defaults to run above, so anything left
		// unrecognized here is a genuinely unknown subcommand.
		fmt.Fprintf(os.Stderr, "ribbit: unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ribbit: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if ribbitErr, ok := err.(*vmerrors.Error); ok {
		return ribbitErr.ExitCode()
	}
	return 1
}

func showUsage() {
	fmt.Println("ribbit - a Ribbit-style Scheme VM")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ribbit [run] [flags]        Run the default (or -program-store) program   (alias: r)")
	fmt.Println("  ribbit inspect [flags]      Decode and disassemble without executing       (alias: i)")
	fmt.Println("  ribbit test <fixture-dir>   Run conformance fixtures against a directory    (alias: t)")
	fmt.Println()
	fmt.Println("Run flags:")
	fmt.Println("  -program-store <driver>    sqlite3, mysql, postgres, or sqlserver (default: embedded)")
	fmt.Println("  -dsn <dsn>                 data source name for -program-store")
	fmt.Println("  -program <name>            program name to look up in -program-store")
	fmt.Println("  -telemetry-addr <addr>     serve a read-only telemetry websocket on addr")
	fmt.Println("  -diagnostics <text|json>   print a run summary to stderr")
	fmt.Println("  -heap-ribs <n>             rib capacity per semi-space (0 = default)")
	fmt.Println()
	fmt.Println("With no arguments, ribbit runs the embedded default program against")
	fmt.Println("the process's stdin and stdout.")
}
