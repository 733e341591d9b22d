package stream

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/mr-tron/base58"

	"pumpfun-scanner/internal/database"
)

// curveAccountLen is the fixed wire size of a bonding-curve account:
// u64 discriminator, five u64 fields, one flag byte, 32-byte mint.
const curveAccountLen = 8 + 5*8 + 1 + 32

// CurveAccount is the decoded bonding-curve account state.
type CurveAccount struct {
	Discriminator        uint64
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	TokenMint            string
}

// DecodeCurveAccount decodes the fixed little-endian account layout.
func DecodeCurveAccount(data []byte) (*CurveAccount, error) {
	if len(data) < curveAccountLen {
		return nil, fmt.Errorf("curve account data too short: %d bytes, need %d", len(data), curveAccountLen)
	}
	acc := &CurveAccount{
		Discriminator:        binary.LittleEndian.Uint64(data[0:8]),
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[8:16]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(data[16:24]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[24:32]),
		RealSolReserves:      binary.LittleEndian.Uint64(data[32:40]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[40:48]),
		Complete:             data[completeFlagOffset] != 0,
		TokenMint:            base58.Encode(data[49 : 49+32]),
	}
	return acc, nil
}

// createDiscriminator is the 8-byte prefix of a create instruction.
var createDiscriminator = []byte{0x18, 0x1e, 0xc8, 0x28, 0x05, 0x1c, 0x07, 0x77}

// IsCreateInstruction reports whether instruction data starts with the
// create discriminator.
func IsCreateInstruction(data []byte) bool {
	if len(data) < len(createDiscriminator) {
		return false
	}
	for i, b := range createDiscriminator {
		if data[i] != b {
			return false
		}
	}
	return true
}

// KindFromLogs derives the transaction kind from the first instruction log
// line. Returns "" when no recognizable line is present.
func KindFromLogs(logs []string) string {
	for _, line := range logs {
		idx := strings.Index(line, "Instruction: ")
		if idx < 0 {
			continue
		}
		switch strings.Fields(line[idx+len("Instruction: "):])[0] {
		case "Create":
			return database.TxKindCreate
		case "Buy":
			return database.TxKindBuy
		case "Sell":
			return database.TxKindSell
		}
		return ""
	}
	return ""
}

// KindFromData is the discriminator fallback for transactions without
// usable logs.
func KindFromData(data []byte) string {
	if IsCreateInstruction(data) {
		return database.TxKindCreate
	}
	if len(data) == 0 {
		return ""
	}
	switch data[0] {
	case 181:
		return database.TxKindCreate
	case 102:
		return database.TxKindBuy
	case 51:
		return database.TxKindSell
	}
	return ""
}

// TransactionKind resolves a kind from logs first, then instruction data.
func TransactionKind(logs []string, data []byte) string {
	if kind := KindFromLogs(logs); kind != "" {
		return kind
	}
	return KindFromData(data)
}

// DualIndex is the bidirectional map between a token's SPL mint and its
// bonding-curve account.
type DualIndex struct {
	mu          sync.RWMutex
	mintToCurve map[string]string
	curveToMint map[string]string
}

// NewDualIndex creates an empty index.
func NewDualIndex() *DualIndex {
	return &DualIndex{
		mintToCurve: make(map[string]string),
		curveToMint: make(map[string]string),
	}
}

// Put records a (mint, curve) pair, replacing any stale mapping for either
// address.
func (d *DualIndex) Put(mint, curve string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.mintToCurve[mint]; ok && old != curve {
		delete(d.curveToMint, old)
	}
	if old, ok := d.curveToMint[curve]; ok && old != mint {
		delete(d.mintToCurve, old)
	}
	d.mintToCurve[mint] = curve
	d.curveToMint[curve] = mint
}

// MintFor translates a curve account to its mint.
func (d *DualIndex) MintFor(curve string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.curveToMint[curve]
	return m, ok
}

// CurveFor translates a mint to its curve account.
func (d *DualIndex) CurveFor(mint string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.mintToCurve[mint]
	return c, ok
}

// Len returns the number of tracked pairs.
func (d *DualIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.mintToCurve)
}
