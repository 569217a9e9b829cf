package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/tipbot/internal/client/client"
	pb "github.com/dmitrijs2005/tipbot/internal/proto"
)

// getSimpleText is an indirection used to facilitate testing.
var getSimpleText = GetSimpleText

// arg returns args[i] or prompts for it.
func (a *App) arg(args []string, i int, prompt string) (string, error) {
	if i < len(args) {
		return args[i], nil
	}
	return getSimpleText(a.reader, prompt, a.out)
}

// args collects one value per prompt.
func (a *App) args(args []string, prompts ...string) ([]string, error) {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		v, err := a.arg(args, i, p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (a *App) call(ctx context.Context, method string, req map[string]any) error {
	resp, err := a.api.Call(ctx, method, req)
	if err != nil {
		if se, ok := client.IsServerError(err); ok {
			fmt.Fprintln(a.out, se.Message)
			return err
		}
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}
	a.print(resp)
	return nil
}

// print shows the reply text, if any, followed by the remaining fields sorted by name.
func (a *App) print(resp map[string]any) {
	if reply, ok := resp["reply"].(string); ok {
		fmt.Fprintln(a.out, reply)
	}
	keys := make([]string, 0, len(resp))
	for k := range resp {
		if k != "reply" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.out, "  %s: %v\n", k, resp[k])
	}
}

func (a *App) InitializeMaster(ctx context.Context, _ []string) error {
	return a.call(ctx, pb.MethodInitializeMaster, nil)
}

func (a *App) Register(ctx context.Context, args []string) error {
	v, err := a.args(args, "Handle")
	if err != nil {
		return err
	}
	return a.call(ctx, pb.MethodRegister, map[string]any{"handle": v[0]})
}

func (a *App) Link(ctx context.Context, args []string) error {
	v, err := a.args(args, "Handle", "Wallet address")
	if err != nil {
		return err
	}
	return a.call(ctx, pb.MethodRegisterExternal, map[string]any{"handle": v[0], "wallet": v[1]})
}

// Tip takes sender, recipient, amount and optionally asset and message id.
func (a *App) Tip(ctx context.Context, args []string) error {
	v, err := a.args(args, "Sender", "Recipient", "Amount")
	if err != nil {
		return err
	}
	req := map[string]any{"sender": v[0], "recipient": v[1], "amount": v[2]}
	if len(args) > 3 {
		req["asset"] = strings.ToUpper(args[3])
	}
	if len(args) > 4 {
		req["message_id"] = args[4]
	}
	return a.call(ctx, pb.MethodTip, req)
}

func (a *App) Balance(ctx context.Context, args []string) error {
	v, err := a.args(args, "Handle")
	if err != nil {
		return err
	}
	return a.call(ctx, pb.MethodBalance, map[string]any{"handle": v[0]})
}

func (a *App) Deposit(ctx context.Context, args []string) error {
	v, err := a.args(args, "Handle", "Amount")
	if err != nil {
		return err
	}
	return a.call(ctx, pb.MethodDeposit, map[string]any{"handle": v[0], "amount": v[1]})
}

func (a *App) Withdraw(ctx context.Context, args []string) error {
	v, err := a.args(args, "Handle", "Destination address", "Amount")
	if err != nil {
		return err
	}
	return a.call(ctx, pb.MethodWithdraw, map[string]any{"handle": v[0], "destination": v[1], "amount": v[2]})
}

func (a *App) Reconcile(ctx context.Context, _ []string) error {
	return a.call(ctx, pb.MethodReconcile, nil)
}
