package piobind

// Channel programs, assembled for one mandatory side-set bit. Jump targets
// are relative to the load offset.

// pixelProgram shifts 24 stages per word LSB first with SRCLK on side-set,
// drops the 7 unused bits, then pulses RCLK via SET if bit 31 was set.
//
//	set x, 23        side 0
//	bit:
//	out pins, 1      side 0
//	jmp x-- bit      side 1
//	out null, 7      side 0
//	out x, 1         side 0
//	jmp !x 0         side 0
//	set pins, 1      side 0
//	set pins, 0      side 0
var pixelProgram = []uint16{
	0xE037,
	0x6001,
	0x1041,
	0x6067,
	0x6021,
	0x0020,
	0xE001,
	0xE000,
}

// rowProgram puts the first-row flag on ROW_SER and clocks the row chain
// once per counted pulse with ROW_SER low after the first.
//
//	out pins, 1      side 0
//	out x, 31        side 0
//	jmp x-- pulse    side 0
//	pulse:
//	mov y, y         side 1
//	set pins, 0      side 0
//	jmp x-- pulse    side 0
var rowProgram = []uint16{
	0x6001,
	0x603F,
	0x0043,
	0xB042,
	0xE000,
	0x0043,
}

// delayProgram holds OE high while it waits for a word, then low for that
// many cycles.
//
//	out x, 32        side 1
//	wait:
//	jmp x-- wait     side 0
var delayProgram = []uint16{
	0x7020,
	0x0041,
}
