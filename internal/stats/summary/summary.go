// Package summary 合并多个独立账本的汇总结果。
// 纯函数，无内部状态。
package summary

import (
	"attacker-evaluator/internal/core/ledger"
	"attacker-evaluator/internal/core/model"
)

// Zero 计数全为 0 的汇总
func Zero() model.Summary {
	return model.Summary{}
}

// Add 逐项相加两个汇总的计数字段
// nil 视为 Zero()。比值字段由相加后的计数重新计算；
// 标准化收益无法由计数合并，结果中置为 nil。
func Add(a, b *model.Summary) model.Summary {
	za, zb := Zero(), Zero()
	if a == nil {
		a = &za
	}
	if b == nil {
		b = &zb
	}

	out := model.Summary{
		CurrentIndex:         a.CurrentIndex + b.CurrentIndex,
		NumResolvedDecisions: a.NumResolvedDecisions + b.NumResolvedDecisions,
		TotalProfit:          a.TotalProfit + b.TotalProfit,
		Wins:                 a.Wins + b.Wins,
		Losses:               a.Losses + b.Losses,
	}
	out.WinLossRatio = ledger.WinLossRatio(out.Wins, out.Losses)
	if out.NumResolvedDecisions > 0 {
		out.ProfitPerDecision = out.TotalProfit / float64(out.NumResolvedDecisions)
	}
	return out
}

// Total 依次累加任意多个汇总
func Total(items ...*model.Summary) model.Summary {
	total := Zero()
	for _, s := range items {
		total = Add(&total, s)
	}
	return total
}
