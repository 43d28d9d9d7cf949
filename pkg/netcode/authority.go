package netcode

import (
	"sort"
	"time"

	"kartnet/pkg/core"
)

// Authority 实体在服务器上的唯一输入来源，生成时确定，之后不再切换
type Authority interface {
	// Next 返回本 tick 要应用的下一条输入
	Next(serverTick core.Tick) (core.InputPayload, bool)
	// Local 为 true 表示输入在服务器本机采集（房主自己的车）
	Local() bool
}

// RemoteAuthority 消费网络收到的输入，按 tick 顺序出队
// 缺失的 tick 会等待 gapWait 个服务器 tick，之后跳过
type RemoteAuthority struct {
	queue    []core.InputPayload
	maxQueue int
	gapWait  int

	lastApplied core.Tick
	applied     bool
	waited      int

	stalls  uint64
	skipped uint64
}

// NewRemoteAuthority 创建远端权威
func NewRemoteAuthority(maxQueue, gapWait int) *RemoteAuthority {
	if maxQueue <= 0 {
		maxQueue = 256
	}
	if gapWait < 0 {
		gapWait = 0
	}
	return &RemoteAuthority{
		queue:    make([]core.InputPayload, 0, 16),
		maxQueue: maxQueue,
		gapWait:  gapWait,
	}
}

func (a *RemoteAuthority) Local() bool { return false }

// Enqueue 按 tick 有序插入；已应用或已排队的 tick 会被拒绝
func (a *RemoteAuthority) Enqueue(input core.InputPayload) error {
	if a.applied && input.Tick <= a.lastApplied {
		return ErrLateInput
	}

	i := sort.Search(len(a.queue), func(i int) bool {
		return a.queue[i].Tick >= input.Tick
	})
	if i < len(a.queue) && a.queue[i].Tick == input.Tick {
		return ErrDuplicateInput
	}
	if len(a.queue) >= a.maxQueue {
		return ErrInputQueueFull
	}

	a.queue = append(a.queue, core.InputPayload{})
	copy(a.queue[i+1:], a.queue[i:])
	a.queue[i] = input
	return nil
}

// Next 取出下一条输入
func (a *RemoteAuthority) Next(core.Tick) (core.InputPayload, bool) {
	if len(a.queue) == 0 {
		return core.InputPayload{}, false
	}

	head := a.queue[0]
	if a.applied && head.Tick > a.lastApplied+1 && a.waited < a.gapWait {
		// 中间有 tick 还没到，先等一等，批量重发可能会补上
		a.waited++
		a.stalls++
		return core.InputPayload{}, false
	}
	if a.applied && head.Tick > a.lastApplied+1 {
		a.skipped += uint64(head.Tick - a.lastApplied - 1)
	}

	a.queue = a.queue[1:]
	a.lastApplied = head.Tick
	a.applied = true
	a.waited = 0
	return head, true
}

// Pending 排队中的输入数
func (a *RemoteAuthority) Pending() int {
	return len(a.queue)
}

// LastApplied 最后一次应用的 tick
func (a *RemoteAuthority) LastApplied() (core.Tick, bool) {
	return a.lastApplied, a.applied
}

// Gaps 返回等待次数和被跳过的 tick 数
func (a *RemoteAuthority) Gaps() (stalls, skipped uint64) {
	return a.stalls, a.skipped
}

// LocalAuthority 服务器本机采集输入，用于房主自己的车
type LocalAuthority struct {
	ownerID uint64
	source  core.InputSource
	vehicle core.Vehicle
	now     func() time.Time
}

// NewLocalAuthority 创建本地权威，vehicle 用于记录采集时的位置
func NewLocalAuthority(ownerID uint64, source core.InputSource, vehicle core.Vehicle, now func() time.Time) *LocalAuthority {
	if now == nil {
		now = time.Now
	}
	return &LocalAuthority{
		ownerID: ownerID,
		source:  source,
		vehicle: vehicle,
		now:     now,
	}
}

func (a *LocalAuthority) Local() bool { return true }

// Next 每个服务器 tick 采集一次
func (a *LocalAuthority) Next(serverTick core.Tick) (core.InputPayload, bool) {
	return core.CaptureInput(serverTick, a.ownerID, a.source, a.vehicle, a.now().UnixMilli()), true
}

// bindVehicle 生成实体后绑定车辆
func (a *LocalAuthority) bindVehicle(v core.Vehicle) {
	if a.vehicle == nil {
		a.vehicle = v
	}
}
