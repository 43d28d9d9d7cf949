package netcode

// LatestSlot 单槽消息通道：写入方总是覆盖未读的旧值，读取方非阻塞
// 网络接收协程写，tick 循环读，只有最新的值有意义
type LatestSlot[T any] struct {
	ch chan T
}

func NewLatestSlot[T any]() *LatestSlot[T] {
	return &LatestSlot[T]{ch: make(chan T, 1)}
}

// Offer 写入新值，从不阻塞
// 只允许一个写入方，否则两个写入方可能同时抢空槽位
func (s *LatestSlot[T]) Offer(v T) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		// 槽位已满，丢弃旧值后重试
		select {
		case <-s.ch:
		default:
		}
	}
}

// Take 取出最新值（若有）
func (s *LatestSlot[T]) Take() (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
