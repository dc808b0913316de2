package thumb_test

import (
	"testing"

	"github.com/pine2k/pine2k/internal/thumb"
)

func TestEncodeDecodeSPOffsetRoundTrips(t *testing.T) {
	hw := thumb.EncodeSPOffset(true, 3, 17)
	isLoad, rd, imm8 := thumb.DecodeSPOffset(hw)
	if !isLoad || rd != 3 || imm8 != 17 {
		t.Fatalf("got (%v, %d, %d), want (true, 3, 17)", isLoad, rd, imm8)
	}
}

func TestEncodeDecodeShiftImmRoundTrips(t *testing.T) {
	hw := thumb.EncodeShiftImm(thumb.ShiftLSR, 9, 2, 5)
	op, imm5, rm, rd := thumb.DecodeShiftImm(hw)
	if op != thumb.ShiftLSR || imm5 != 9 || rm != 2 || rd != 5 {
		t.Fatalf("got (%v, %d, %d, %d), want (LSR, 9, 2, 5)", op, imm5, rm, rd)
	}
}

func TestEncodeDecodeAddSub3RoundTrips(t *testing.T) {
	hw := thumb.EncodeAddSub3(true, true, 5, 1, 2)
	isImm, isSub, rnOrImm3, rs, rd := thumb.DecodeAddSub3(hw)
	if !isImm || !isSub || rnOrImm3 != 5 || rs != 1 || rd != 2 {
		t.Fatalf("round trip mismatch: %v %v %d %d %d", isImm, isSub, rnOrImm3, rs, rd)
	}
}

func TestEncodeDecodeImmOffsetRoundTrips(t *testing.T) {
	hw := thumb.EncodeImmOffset(false, true, 31, 4, 6)
	isByte, isLoad, imm5, rb, rd := thumb.DecodeImmOffset(hw)
	if isByte || !isLoad || imm5 != 31 || rb != 4 || rd != 6 {
		t.Fatalf("round trip mismatch: %v %v %d %d %d", isByte, isLoad, imm5, rb, rd)
	}
}

func TestEncodeBccRoundTrips(t *testing.T) {
	hw := thumb.EncodeBcc(thumb.CondNE, -5)
	cond, simm8 := thumb.DecodeBcc(hw)
	if cond != thumb.CondNE || simm8 != -5 {
		t.Fatalf("got (%v, %d), want (NE, -5)", cond, simm8)
	}
}
