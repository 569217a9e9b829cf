package routing

import (
	"fmt"
	"testing"

	"github.com/dmitrijs2005/tipbot/internal/balance"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/solana"
	"github.com/stretchr/testify/assert"
)

func TestOutcomeReply(t *testing.T) {
	var sig solana.Signature
	sig[0] = 1
	link := ExplorerURL(sig, "devnet")
	assert.Equal(t, fmt.Sprintf("https://solscan.io/tx/%s?cluster=devnet", sig), link)

	tip := Outcome{Kind: KindTip, Status: StatusConfirmed, Route: RouteDirect, Recipient: "bob", Amount: 1_500_000, Asset: balance.USDC, Signature: sig}
	assert.Equal(t, "Sent 1.5 USDC to @bob!\n\nView: "+link, tip.Reply("devnet"))

	failed := Outcome{Kind: KindRegister, Status: StatusFailed, Reason: "boom"}
	assert.Equal(t, "Registration failed: boom", failed.Reply("devnet"))

	pending := Outcome{Kind: KindWithdraw, Status: StatusPending}
	assert.Equal(t, "Withdrawal submitted, confirmation pending.", pending.Reply("devnet"))
}

func TestReplyForError(t *testing.T) {
	assert.Equal(t, "Invalid request: cannot tip yourself", ReplyForError(wrapf(common.ErrValidation, "cannot tip yourself")))
	assert.Contains(t, ReplyForError(common.ErrSenderUnregistered), "register")
	assert.Contains(t, ReplyForError(fmt.Errorf("x: %w", common.ErrInsufficientBalance)), "Insufficient balance")
	assert.Equal(t, "Something went wrong. Please try again later.", ReplyForError(fmt.Errorf("io")))
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "escrow", RouteEscrow.String())
	assert.Equal(t, RouteDirect, parseRoute("direct"))
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "withdraw", KindWithdraw.String())
}
