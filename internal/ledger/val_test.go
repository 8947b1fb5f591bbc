package ledger

import "testing"

func TestValEqual(t *testing.T) {
	addr := AccountAddress([32]byte{1})
	other := ContractAddress([32]byte{1})
	cases := []struct {
		name string
		a, b Val
		want bool
	}{
		{"same symbol", SymbolVal("admin"), SymbolVal("admin"), true},
		{"different symbol", SymbolVal("admin"), SymbolVal("Admin"), false},
		{"symbol vs string", SymbolVal("admin"), StringVal("admin"), false},
		{"enum variant", VecVal(SymbolVal("admin")), VecVal(SymbolVal("admin")), true},
		{"enum variant different arity", VecVal(SymbolVal("admin")), VecVal(SymbolVal("admin"), U32Val(0)), false},
		{"nested vec mismatch", VecVal(VecVal(SymbolVal("a"))), VecVal(VecVal(SymbolVal("b"))), false},
		{"same address", AddressVal(addr), AddressVal(addr), true},
		{"account vs contract address", AddressVal(addr), AddressVal(other), false},
		{"u32", U32Val(7), U32Val(7), true},
		{"u32 vs u64", U32Val(7), U64Val(7), false},
		{"bytes", BytesVal([]byte{1, 2}), BytesVal([]byte{1, 2}), true},
		{"bytes mismatch", BytesVal([]byte{1, 2}), BytesVal([]byte{2, 1}), false},
		{"void", VoidVal(), VoidVal(), true},
		{"bool", BoolVal(true), BoolVal(false), false},
		{
			"map",
			MapVal(MapEntry{Key: SymbolVal("k"), Val: U32Val(1)}),
			MapVal(MapEntry{Key: SymbolVal("k"), Val: U32Val(1)}),
			true,
		},
		{
			"map value mismatch",
			MapVal(MapEntry{Key: SymbolVal("k"), Val: U32Val(1)}),
			MapVal(MapEntry{Key: SymbolVal("k"), Val: U32Val(2)}),
			false,
		},
		{"instance key", InstanceKeyVal(), InstanceKeyVal(), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Fatalf("Equal = %v, want %v", got, tc.want)
			}
			if got := tc.b.Equal(tc.a); got != tc.want {
				t.Fatalf("Equal not symmetric: reversed = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValTypeString(t *testing.T) {
	if TypeSymbol.String() != "symbol" || TypeAddress.String() != "address" {
		t.Fatal("unexpected ValType names")
	}
	if ValType(99).String() == "" {
		t.Fatal("unknown ValType must still render")
	}
}
