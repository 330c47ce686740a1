package ev

// GateReasonNegativeEV 因滚动 EV 为负而放弃行动
const GateReasonNegativeEV = "ev_negative"

// ApplyGate 将 EV 结果应用到决策上
// 规则：样本数达到 minSamples（且至少 1 个）且 EV<0 时，决策置 0 并返回原因。
// 参数 decision: 待执行的决策方向
// 返回: 过滤后的决策与过滤原因（未过滤时为空）
func ApplyGate(decision float64, stats EVStats, minSamples int64) (float64, string) {
	if decision == 0 {
		return 0, ""
	}
	if minSamples < 1 {
		minSamples = 1
	}
	if stats.Count >= minSamples && stats.EV < 0 {
		return 0, GateReasonNegativeEV
	}
	return decision, ""
}
