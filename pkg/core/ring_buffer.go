package core

// RingBuffer 按 tick 寻址的定长历史缓冲区
//
// Add 写入 tick mod capacity 的槽位并无条件覆盖旧值。Get 直接返回槽位内容，
// 不检查槽位里是否真的是请求的 tick：调用方必须保证请求的 tick 不早于
// 最新写入 tick - capacity，否则会静默拿到错误的数据。需要检查时用 Lookup。
type RingBuffer[T any] struct {
	items   []T
	ticks   []Tick
	written []bool
	mask    int
}

// NewRingBuffer 创建缓冲区，容量向上取整到 2 的幂
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &RingBuffer[T]{
		items:   make([]T, size),
		ticks:   make([]Tick, size),
		written: make([]bool, size),
		mask:    size - 1,
	}
}

func (b *RingBuffer[T]) index(tick Tick) int {
	return int(uint32(tick)) & b.mask
}

// Add 把 item 存入 tick 对应的槽位
func (b *RingBuffer[T]) Add(item T, tick Tick) {
	i := b.index(tick)
	b.items[i] = item
	b.ticks[i] = tick
	b.written[i] = true
}

// Get 返回 tick 对应槽位当前的内容（可能是别的 tick 写入的）
func (b *RingBuffer[T]) Get(tick Tick) T {
	return b.items[b.index(tick)]
}

// Lookup 只有槽位确实保存着该 tick 时才返回 true
func (b *RingBuffer[T]) Lookup(tick Tick) (T, bool) {
	i := b.index(tick)
	if !b.written[i] || b.ticks[i] != tick {
		var zero T
		return zero, false
	}
	return b.items[i], true
}

// Capacity 实际容量
func (b *RingBuffer[T]) Capacity() int {
	return len(b.items)
}

// Reset 清空所有槽位
func (b *RingBuffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
		b.ticks[i] = 0
		b.written[i] = false
	}
}
