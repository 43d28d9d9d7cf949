package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrMalformed      = errors.New("消息格式错误")
	ErrUnexpectedType = errors.New("消息类型不匹配")
)

// field 解码出的一个字段，定长与变长整数都放在 u64 里
type field struct {
	num  protowire.Number
	typ  protowire.Type
	u64  uint64
	data []byte
}

func (f field) float32() float32 { return math.Float32frombits(uint32(f.u64)) }
func (f field) int32() int32     { return int32(f.u64) }
func (f field) int64() int64     { return int64(f.u64) }
func (f field) bool() bool       { return f.u64 != 0 }
func (f field) string() string   { return string(f.data) }

// schema 字段号到线格式的映射，未列出的字段直接跳过（向前兼容）
type schema map[protowire.Number]protowire.Type

// walk 逐个解析字段，类型与 schema 不符时报错
func walk(b []byte, s schema, visit func(f field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u64, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u64 = uint64(v)
		case protowire.Fixed64Type:
			f.u64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: 字段 %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		want, known := s[num]
		if !known {
			continue
		}
		if want != typ {
			return fmt.Errorf("%w: 字段 %d 线格式 %d，期望 %d", ErrMalformed, num, typ, want)
		}
		visit(f)
	}
	return nil
}

// 以下 append 函数遵循 proto3 习惯：零值不写

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, uint64(int64(v)))
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	bits := math.Float32bits(v)
	if bits == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, bits)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessage 嵌套消息即使为空也要写，repeated 字段靠它计数
func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVec3(b []byte, first protowire.Number, v mgl32.Vec3) []byte {
	for i := 0; i < 3; i++ {
		b = appendFloat(b, first+protowire.Number(i), v[i])
	}
	return b
}

func vec3Schema(s schema, first protowire.Number) {
	for i := 0; i < 3; i++ {
		s[first+protowire.Number(i)] = protowire.Fixed32Type
	}
}

// setVec3 把 first 起的三个连续字段写入向量，不属于该范围时返回 false
func setVec3(v *mgl32.Vec3, first protowire.Number, f field) bool {
	i := int(f.num - first)
	if i < 0 || i > 2 {
		return false
	}
	v[i] = f.float32()
	return true
}
