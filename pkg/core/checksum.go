package core

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"
)

const stateDigestSize = 4 + 8 + 4*(3+4+3+3)

// Checksum 计算一组状态的指纹，用于比对两条时间线是否一致
// RoundTripMs 不参与计算，它不属于模拟结果
func Checksum(states []StatePayload) uint64 {
	h := xxh3.New()
	var buf [stateDigestSize]byte
	for _, s := range states {
		b := buf[:0]
		b = binary.LittleEndian.AppendUint32(b, uint32(s.Tick))
		b = binary.LittleEndian.AppendUint64(b, s.OwnerID)
		for _, f := range s.Position {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(s.Rotation.W))
		for _, f := range s.Rotation.V {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
		for _, f := range s.Velocity {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
		for _, f := range s.AngularVelocity {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
		_, _ = h.Write(b)
	}
	return h.Sum64()
}
