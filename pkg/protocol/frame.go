package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	FrameHeaderSize = 4    // 长度前缀，大端
	MaxPacketSize   = 4096 // 最大消息大小
)

var (
	ErrFrameTooLarge = errors.New("消息过大")
	ErrTruncated     = errors.New("消息不完整")
)

// AppendFrame 在 dst 后追加“长度前缀 + 数据”
// 前缀与数据放在同一块内存里，一次 Write 写完，websocket 下即一条消息一个包
func AppendFrame(dst, data []byte) ([]byte, error) {
	if len(data) > MaxPacketSize {
		return dst, fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, len(data))
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...), nil
}

// ReadFrame 读取一个完整的帧；长度为 0 的帧返回空切片
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxPacketSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, length)
	}
	if length == 0 {
		return []byte{}, nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		return nil, err
	}
	return data, nil
}

// SplitFrame 从缓冲区中切出第一个完整帧，数据不足时返回 ErrTruncated
func SplitFrame(buf []byte) (frame, rest []byte, err error) {
	if len(buf) < FrameHeaderSize {
		return nil, buf, ErrTruncated
	}
	length := binary.BigEndian.Uint32(buf)
	if length > MaxPacketSize {
		return nil, buf, fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, length)
	}
	end := FrameHeaderSize + int(length)
	if len(buf) < end {
		return nil, buf, ErrTruncated
	}
	return buf[FrameHeaderSize:end], buf[end:], nil
}
