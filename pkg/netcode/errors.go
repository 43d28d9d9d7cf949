package netcode

import "errors"

var (
	ErrUnknownEntity  = errors.New("实体不存在")
	ErrEntityExists   = errors.New("实体已存在")
	ErrLocalAuthority = errors.New("实体由本地权威驱动，不接受远端输入")
	ErrLateInput      = errors.New("输入过期")
	ErrFutureInput    = errors.New("输入 tick 超前过多")
	ErrDuplicateInput = errors.New("重复输入")
	ErrInputQueueFull = errors.New("输入队列已满")
	ErrOwnerMismatch  = errors.New("输入所属玩家不匹配")
)
