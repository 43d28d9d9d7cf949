package core

// 模拟节拍配置
const (
	DefaultTickRate   = 60   // 默认每秒模拟步数
	DefaultBufferSize = 1024 // 历史环形缓冲区容量（tick 数）
	DefaultMaxCatchUp = 8    // 单帧最多补跑的 tick 数
)

// 纠错配置
const (
	DefaultReconcileThreshold = 10.0 // 位置误差阈值（米），超过则回滚重放
	DefaultReconcileCooldown  = 0.5  // 纠错冷却时间（秒）
)

// 卡丁车运动参数（来自原始车辆调校）
const (
	KartMaxSpeed          = 100.0 // 最大前进速度
	KartSpeedRatio        = 5.0   // 前进/倒车速度比
	KartMotorAcceleration = 50.0  // 油门加速度
	KartEngineBraking     = 50.0  // 松油门时的发动机制动
	KartBrakeMultiplier   = 1.0   // 反向输入时的刹车系数
	KartLowSpeedStop      = 0.2   // 低于此速度直接停车
	KartInputSnap         = 0.7   // 输入绝对值超过此值视为满输入
	KartMaxSteerRate      = 2.0   // 最大偏航角速度（弧度/秒）
	KartReverseSteerScale = 0.5   // 倒车时的转向比例
	KartLowSpeedTurn      = 22.0  // 低于此速度转向能力线性衰减
)
