// Package instruction encodes and decodes calls to the tip program and
// assembles their ordered account lists.
package instruction

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tipbot/internal/borsh"
	"github.com/dmitrijs2005/tipbot/internal/handle"
)

// Op identifies a program instruction.
type Op int

const (
	OpInitialize Op = iota + 1
	OpRegisterUser
	OpDeposit
	OpTip
	OpTipToEscrow
	OpWithdraw
)

var opNames = map[Op]string{
	OpInitialize:   "initialize",
	OpRegisterUser: "register_user",
	OpDeposit:      "deposit",
	OpTip:          "tip",
	OpTipToEscrow:  "tip_to_escrow",
	OpWithdraw:     "withdraw",
}

// Ops lists every known instruction.
var Ops = []Op{OpInitialize, OpRegisterUser, OpDeposit, OpTip, OpTipToEscrow, OpWithdraw}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// TagLength is the width of every instruction tag.
const TagLength = 8

var (
	ErrUnknownTag  = errors.New("unknown instruction tag")
	ErrInvalidArgs = errors.New("invalid instruction arguments")
)

// Discriminator returns the first eight bytes of sha256(namespace:name).
func Discriminator(namespace, name string) [TagLength]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [TagLength]byte
	copy(d[:], sum[:TagLength])
	return d
}

// Tag is the instruction discriminator of o.
func (o Op) Tag() [TagLength]byte {
	return Discriminator("global", o.String())
}

// Args carries the decoded arguments of any instruction. Fields unused by an
// op are zero.
type Args struct {
	Handle string
	Amount uint64
}

// Encode serializes op and its arguments.
func Encode(op Op, args Args) ([]byte, error) {
	if _, ok := opNames[op]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTag, op)
	}
	tag := op.Tag()
	w := borsh.NewWriter(TagLength + 8 + 4 + len(args.Handle)).Raw(tag[:])

	switch op {
	case OpInitialize:
	case OpRegisterUser:
		if err := checkHandle(args.Handle); err != nil {
			return nil, err
		}
		w.String(args.Handle)
	case OpDeposit, OpWithdraw:
		w.U64(args.Amount)
	case OpTip, OpTipToEscrow:
		if err := checkHandle(args.Handle); err != nil {
			return nil, err
		}
		w.U64(args.Amount).String(args.Handle)
	}
	return w.Bytes(), nil
}

func checkHandle(h string) error {
	if h == "" || len(h) > handle.MaxLen {
		return fmt.Errorf("%w: handle length %d", ErrInvalidArgs, len(h))
	}
	return nil
}

// Decode reverses Encode. Trailing bytes are rejected.
func Decode(data []byte) (Op, Args, error) {
	if len(data) < TagLength {
		return 0, Args{}, fmt.Errorf("%w: payload shorter than tag", ErrUnknownTag)
	}

	var op Op
	for _, candidate := range Ops {
		tag := candidate.Tag()
		if bytes.Equal(data[:TagLength], tag[:]) {
			op = candidate
			break
		}
	}
	if op == 0 {
		return 0, Args{}, fmt.Errorf("%w: %x", ErrUnknownTag, data[:TagLength])
	}

	r := borsh.NewReader(data[TagLength:])
	var args Args
	var err error

	switch op {
	case OpRegisterUser:
		args.Handle, err = r.String(handle.MaxLen)
	case OpDeposit, OpWithdraw:
		args.Amount, err = r.U64()
	case OpTip, OpTipToEscrow:
		if args.Amount, err = r.U64(); err == nil {
			args.Handle, err = r.String(handle.MaxLen)
		}
	}
	if err != nil {
		return 0, Args{}, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, op, err)
	}
	if r.Remaining() != 0 {
		return 0, Args{}, fmt.Errorf("%w: %s: %d trailing bytes", ErrInvalidArgs, op, r.Remaining())
	}
	return op, args, nil
}
