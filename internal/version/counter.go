package version

// 版本号用于仲裁对同一房间播放状态的并发写入
// 单调递增，到达上限后回绕，保证永远处于安全整数范围内

const (
	// Ceiling 版本号上限（2^50）
	Ceiling int64 = 1 << 50

	halfCeiling = Ceiling / 2
)

// Increment 返回下一个版本号
// 到达上限后回绕到 1（永远不会返回 0，0 保留给新建房间的初始状态）
func Increment(current int64) int64 {
	if current >= Ceiling {
		return 1
	}
	return current + 1
}

// IsNewer 判断 incoming 是否比 current 更新
// 正常情况下数值更大的一方更新；当两者差值超过上限的一半时
// 认为发生了回绕，此时数值更小的一方视为更新
func IsNewer(incoming, current int64) bool {
	diff := incoming - current
	if diff < 0 {
		diff = -diff
	}
	if diff > halfCeiling {
		return incoming < current
	}
	return incoming > current
}
