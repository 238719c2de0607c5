package cpu

import "apex/mask"

// Byte packs the three condition-code flags into a single byte: bit 7 (I1)
// is Z, bit 6 (I2) is P, bit 5 (I3) is N, the rest unused. This plays the
// same role the teacher's mask package played packing the 6502's NV1B DIZC
// status byte. The per-cycle trace and the single_step TUI do not call it;
// they print the three flags as booleans.
func (cc ConditionCode) Byte() byte {
	var b byte
	if cc.Z {
		b = mask.Set(b, mask.I1, 1)
	}
	if cc.P {
		b = mask.Set(b, mask.I2, 1)
	}
	if cc.N {
		b = mask.Set(b, mask.I3, 1)
	}
	return b
}

// FlagsFromByte reconstructs a ConditionCode from a byte produced by Byte.
func FlagsFromByte(b byte) ConditionCode {
	return ConditionCode{
		Z: mask.IsSet(b, mask.I1),
		P: mask.IsSet(b, mask.I2),
		N: mask.IsSet(b, mask.I3),
	}
}
