package stream

import (
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"

	"pumpfun-scanner/internal/database"
)

func curveAccountBytes(vTok, vSol, rTok, rSol, supply uint64, complete byte, mint [32]byte) []byte {
	data := make([]byte, curveAccountLen)
	binary.LittleEndian.PutUint64(data[0:8], 0x60_01)
	binary.LittleEndian.PutUint64(data[8:16], vTok)
	binary.LittleEndian.PutUint64(data[16:24], vSol)
	binary.LittleEndian.PutUint64(data[24:32], rTok)
	binary.LittleEndian.PutUint64(data[32:40], rSol)
	binary.LittleEndian.PutUint64(data[40:48], supply)
	data[48] = complete
	copy(data[49:], mint[:])
	return data
}

func TestDecodeCurveAccount(t *testing.T) {
	var mint [32]byte
	for i := range mint {
		mint[i] = byte(i + 1)
	}
	data := curveAccountBytes(1_000_000_000_000, 30_000_000_000, 800_000_000_000, 10_000_000_000, 1_000_000_000_000_000, 0, mint)

	acc, err := DecodeCurveAccount(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acc.VirtualTokenReserves != 1_000_000_000_000 {
		t.Errorf("virtual token reserves = %d", acc.VirtualTokenReserves)
	}
	if acc.VirtualSolReserves != 30_000_000_000 {
		t.Errorf("virtual sol reserves = %d", acc.VirtualSolReserves)
	}
	if acc.RealSolReserves != 10_000_000_000 {
		t.Errorf("real sol reserves = %d", acc.RealSolReserves)
	}
	if acc.Complete {
		t.Error("complete flag set on zero byte")
	}
	if want := base58.Encode(mint[:]); acc.TokenMint != want {
		t.Errorf("mint = %s, want %s", acc.TokenMint, want)
	}
}

func TestDecodeCurveAccountCompleteFlag(t *testing.T) {
	data := curveAccountBytes(1, 1, 1, 1, 1, 1, [32]byte{})
	acc, err := DecodeCurveAccount(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !acc.Complete {
		t.Error("complete flag not decoded")
	}
}

func TestDecodeCurveAccountShortData(t *testing.T) {
	if _, err := DecodeCurveAccount(make([]byte, 40)); err == nil {
		t.Error("expected error on short data")
	}
}

func TestTransactionKindFromLogs(t *testing.T) {
	cases := []struct {
		logs []string
		want string
	}{
		{[]string{"Program log: Instruction: Create"}, database.TxKindCreate},
		{[]string{"Program log: Instruction: Buy"}, database.TxKindBuy},
		{[]string{"Program log: Instruction: Sell"}, database.TxKindSell},
		{[]string{"Program log: Instruction: Withdraw"}, ""},
		{[]string{"Program consumed 2000 units"}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := KindFromLogs(tc.logs); got != tc.want {
			t.Errorf("KindFromLogs(%v) = %q, want %q", tc.logs, got, tc.want)
		}
	}
}

func TestTransactionKindDiscriminatorFallback(t *testing.T) {
	if got := TransactionKind(nil, []byte{181}); got != database.TxKindCreate {
		t.Errorf("discriminator 181 = %q, want create", got)
	}
	if got := TransactionKind(nil, []byte{102}); got != database.TxKindBuy {
		t.Errorf("discriminator 102 = %q, want buy", got)
	}
	if got := TransactionKind(nil, []byte{51}); got != database.TxKindSell {
		t.Errorf("discriminator 51 = %q, want sell", got)
	}
	if got := TransactionKind(nil, []byte{0x18, 0x1e, 0xc8, 0x28, 0x05, 0x1c, 0x07, 0x77, 0xff}); got != database.TxKindCreate {
		t.Errorf("create prefix = %q, want create", got)
	}
	// Logs win over the discriminator.
	if got := TransactionKind([]string{"Program log: Instruction: Sell"}, []byte{102}); got != database.TxKindSell {
		t.Errorf("log override = %q, want sell", got)
	}
}

func TestDualIndex(t *testing.T) {
	idx := NewDualIndex()
	idx.Put("mint-a", "curve-a")

	if m, ok := idx.MintFor("curve-a"); !ok || m != "mint-a" {
		t.Errorf("MintFor = %s %v", m, ok)
	}
	if c, ok := idx.CurveFor("mint-a"); !ok || c != "curve-a" {
		t.Errorf("CurveFor = %s %v", c, ok)
	}

	// Re-pointing a mint must drop the stale reverse mapping.
	idx.Put("mint-a", "curve-b")
	if _, ok := idx.MintFor("curve-a"); ok {
		t.Error("stale curve mapping survived")
	}
	if idx.Len() != 1 {
		t.Errorf("len = %d, want 1", idx.Len())
	}
}

func TestPriceFromAccount(t *testing.T) {
	acc := &CurveAccount{
		VirtualTokenReserves: 1_000_000_000_000, // 1M tokens at 6 decimals
		VirtualSolReserves:   30_000_000_000,    // 30 SOL
		RealSolReserves:      10_000_000_000,    // 10 SOL
		TokenTotalSupply:     1_000_000_000_000_000,
		TokenMint:            "mint-a",
	}
	sample, ok := priceFromAccount(acc, 42)
	if !ok {
		t.Fatal("expected a sample")
	}
	if want := 30.0 / 1_000_000; sample.PriceSol != want {
		t.Errorf("price sol = %v, want %v", sample.PriceSol, want)
	}
	if sample.Slot != 42 || sample.Source != "firehose" {
		t.Errorf("sample meta = slot %d source %s", sample.Slot, sample.Source)
	}

	acc.VirtualTokenReserves = 0
	if _, ok := priceFromAccount(acc, 42); ok {
		t.Error("zero token reserves must not produce a sample")
	}
}
