package solana

import (
	"errors"
	"fmt"
)

var ErrMissingSigner = errors.New("missing signer")

// MessageHeader counts the signer and readonly sections of AccountKeys.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction refers to accounts by index into Message.AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// Transaction pairs a message with one signature per required signer.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

type keyFlags struct {
	signer   bool
	writable bool
}

// NewTransaction compiles instructions into a legacy message. The fee payer is
// always the first key. Remaining keys are grouped writable signers, readonly
// signers, writable non-signers, readonly non-signers, keeping first-seen
// order inside each group. Duplicate metas merge their flags.
func NewTransaction(instructions []Instruction, blockhash Hash, feePayer PublicKey) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, errors.New("no instructions")
	}

	order := []PublicKey{feePayer}
	flags := map[PublicKey]*keyFlags{feePayer: {signer: true, writable: true}}

	add := func(pk PublicKey, signer, writable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &keyFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}

	for _, ix := range instructions {
		for _, m := range ix.Accounts {
			add(m.PublicKey, m.IsSigner, m.IsWritable)
		}
		add(ix.Program, false, false)
	}

	var ws, rs, wu, ru []PublicKey
	for _, pk := range order[1:] {
		f := flags[pk]
		switch {
		case f.signer && f.writable:
			ws = append(ws, pk)
		case f.signer:
			rs = append(rs, pk)
		case f.writable:
			wu = append(wu, pk)
		default:
			ru = append(ru, pk)
		}
	}

	keys := make([]PublicKey, 0, len(order))
	keys = append(keys, feePayer)
	keys = append(keys, ws...)
	keys = append(keys, rs...)
	keys = append(keys, wu...)
	keys = append(keys, ru...)

	if len(keys) > 256 {
		return nil, fmt.Errorf("too many accounts: %d", len(keys))
	}

	index := make(map[PublicKey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	compiled := make([]CompiledInstruction, 0, len(instructions))
	for _, ix := range instructions {
		ci := CompiledInstruction{
			ProgramIDIndex: index[ix.Program],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           ix.Data,
		}
		for i, m := range ix.Accounts {
			ci.Accounts[i] = index[m.PublicKey]
		}
		compiled = append(compiled, ci)
	}

	msg := Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(1 + len(ws) + len(rs)),
			NumReadonlySignedAccounts:   uint8(len(rs)),
			NumReadonlyUnsignedAccounts: uint8(len(ru)),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    compiled,
	}

	return &Transaction{
		Signatures: make([]Signature, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}, nil
}

// Signers returns the keys that must sign, in signature order.
func (m *Message) Signers() []PublicKey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// IsWritable reports the writability of the key at index i.
func (m *Message) IsWritable(i int) bool {
	n := len(m.AccountKeys)
	sig := int(m.Header.NumRequiredSignatures)
	if i < sig {
		return i < sig-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < n-int(m.Header.NumReadonlyUnsignedAccounts)
}

// IsSigner reports whether the key at index i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// Serialize encodes the message in the legacy wire format.
func (m *Message) Serialize() []byte {
	var b []byte
	b = append(b, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)

	b = appendCompactU16(b, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		b = append(b, k[:]...)
	}
	b = append(b, m.RecentBlockhash[:]...)

	b = appendCompactU16(b, len(m.Instructions))
	for _, ix := range m.Instructions {
		b = append(b, ix.ProgramIDIndex)
		b = appendCompactU16(b, len(ix.Accounts))
		b = append(b, ix.Accounts...)
		b = appendCompactU16(b, len(ix.Data))
		b = append(b, ix.Data...)
	}
	return b
}

// Sign fills every required signature. Extra signers are ignored; a missing
// one fails with ErrMissingSigner.
func (tx *Transaction) Sign(signers ...Signer) error {
	byKey := make(map[PublicKey]Signer, len(signers))
	for _, s := range signers {
		byKey[s.PublicKey()] = s
	}

	msg := tx.Message.Serialize()
	for i, pk := range tx.Message.Signers() {
		s, ok := byKey[pk]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
		sig, err := s.Sign(msg)
		if err != nil {
			return fmt.Errorf("sign with %s: %w", pk, err)
		}
		tx.Signatures[i] = sig
	}
	return nil
}

// Signature returns the fee payer signature, which identifies the transaction.
func (tx *Transaction) Signature() Signature {
	if len(tx.Signatures) == 0 {
		return Signature{}
	}
	return tx.Signatures[0]
}

// Serialize encodes signatures followed by the message.
func (tx *Transaction) Serialize() ([]byte, error) {
	for i, s := range tx.Signatures {
		if s.IsZero() {
			return nil, fmt.Errorf("%w: signature %d empty", ErrMissingSigner, i)
		}
	}
	var b []byte
	b = appendCompactU16(b, len(tx.Signatures))
	for _, s := range tx.Signatures {
		b = append(b, s[:]...)
	}
	return append(b, tx.Message.Serialize()...), nil
}

func appendCompactU16(b []byte, n int) []byte {
	v := uint16(n)
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}
