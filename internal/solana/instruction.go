package solana

import "encoding/binary"

// AccountMeta represents the account information required
// for building transactions.
type AccountMeta struct {
	PublicKey  PublicKey
	IsWritable bool
	IsSigner   bool
}

func Meta(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk} }

func (m AccountMeta) Writable() AccountMeta { m.IsWritable = true; return m }

func (m AccountMeta) Signer() AccountMeta { m.IsSigner = true; return m }

// Instruction represents a transaction instruction.
type Instruction struct {
	Program  PublicKey
	Accounts []AccountMeta
	Data     []byte
}

const systemTransferIndex = 2

// SystemTransfer moves lamports between two system-owned accounts.
func SystemTransfer(from, to PublicKey, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return Instruction{
		Program: SystemProgramID,
		Accounts: []AccountMeta{
			Meta(from).Writable().Signer(),
			Meta(to).Writable(),
		},
		Data: data,
	}
}

// DecodeSystemTransfer returns the lamports of a system transfer payload.
func DecodeSystemTransfer(data []byte) (uint64, bool) {
	if len(data) != 12 || binary.LittleEndian.Uint32(data[0:4]) != systemTransferIndex {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data[4:12]), true
}
