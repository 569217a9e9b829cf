package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a lightweight stub.
type execIface interface {
	InitializeMaster(ctx context.Context, args []string) error
	Register(ctx context.Context, args []string) error
	Link(ctx context.Context, args []string) error
	Tip(ctx context.Context, args []string) error
	Balance(ctx context.Context, args []string) error
	Deposit(ctx context.Context, args []string) error
	Withdraw(ctx context.Context, args []string) error
	Reconcile(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  init                                      initialize the master wallet
  register <handle>                         create a custodied wallet
  link <handle> <wallet>                    register an external wallet
  tip <from> <to> <amount> [asset] [msgid]  send a tip
  (b)alance <handle>                        show balances
  deposit <handle> <amount>                 credit a user from the authority
  withdraw <handle> <address> <amount>      move funds out
  reconcile                                 settle pending attempts
  exit | quit`

// runREPL reads a line from scanner, dispatches the first token as a command
// with the rest as arguments, and loops until EOF or "exit"/"quit".
// Command errors are printed by the handlers themselves.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("tipbot %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)
		case "init":
			_ = a.InitializeMaster(ctx, args)
		case "register":
			_ = a.Register(ctx, args)
		case "link":
			_ = a.Link(ctx, args)
		case "tip":
			_ = a.Tip(ctx, args)
		case "b", "balance":
			_ = a.Balance(ctx, args)
		case "deposit":
			_ = a.Deposit(ctx, args)
		case "withdraw":
			_ = a.Withdraw(ctx, args)
		case "reconcile":
			_ = a.Reconcile(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
