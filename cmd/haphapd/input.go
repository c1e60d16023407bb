package main

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Linux input/force-feedback wire structures. Encoding lives here so it can be
// tested on any platform; the device I/O is in evdev_linux.go.

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// encode serializes the event in host byte order for write(2).
func (ev inputEvent) encode() []byte {
	var buf bytes.Buffer
	buf.Grow(binary.Size(ev))
	_ = binary.Write(&buf, binary.NativeEndian, ev)
	return buf.Bytes()
}

// playEvent starts (count > 0) or stops an uploaded effect.
func playEvent(id int16, count int32) inputEvent {
	return inputEvent{Type: EV_FF, Code: uint16(id), Value: count}
}

// gainEvent sets the device-wide force-feedback gain, gain in [0,1].
func gainEvent(gain float64) inputEvent {
	return inputEvent{Type: EV_FF, Code: FF_GAIN, Value: int32(math.Round(clamp01(gain) * evdevMagnitudeMax))}
}

// ioctl request encoding (asm-generic/ioctl.h).
const (
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

var (
	eviocsff  = ioc(iocWrite, 'E', 0x80, ffEffectSize) // upload effect
	eviocrmff = ioc(iocWrite, 'E', 0x81, 4)            // erase effect, int id by value
)

// eviocgbit returns EVIOCGBIT(ev, size): the capability bitmap for event type ev.
func eviocgbit(ev, size uintptr) uintptr {
	return ioc(iocRead, 'E', 0x20+ev, size)
}

// rumbleEffect encodes a struct ff_effect of type FF_RUMBLE.
//
//	type u16 | id s16 | direction u16 | trigger{button, interval u16} |
//	replay{length, delay u16} | pad | union{rumble{strong, weak u16}}
func rumbleEffect(id int16, strong, weak uint16, lengthMs uint16) []byte {
	buf := make([]byte, ffEffectSize)
	ne := binary.NativeEndian
	ne.PutUint16(buf[0:], FF_RUMBLE)
	ne.PutUint16(buf[2:], uint16(id))
	ne.PutUint16(buf[10:], lengthMs)
	ne.PutUint16(buf[ffUnionOffset:], strong)
	ne.PutUint16(buf[ffUnionOffset+2:], weak)
	return buf
}

// effectID reads the id field the kernel writes back on upload.
func effectID(effect []byte) int16 {
	return int16(binary.NativeEndian.Uint16(effect[2:]))
}

func setEffectID(effect []byte, id int16) {
	binary.NativeEndian.PutUint16(effect[2:], uint16(id))
}

// rumbleMagnitudes maps a level in [0,1] to strong/weak motor magnitudes.
func rumbleMagnitudes(level float64) (strong, weak uint16) {
	l := clamp01(level)
	strong = uint16(math.Round(l * evdevMagnitudeMax))
	weak = uint16(math.Round(l * evdevWeakMagnitudeRatio * evdevMagnitudeMax))
	return strong, weak
}

// hasBit tests bit n of a kernel capability bitmap.
func hasBit(bitmap []byte, n int) bool {
	if n/8 >= len(bitmap) {
		return false
	}
	return bitmap[n/8]&(1<<(n%8)) != 0
}
