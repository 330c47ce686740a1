package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"attacker-evaluator/internal/util/fastparse"
)

// ValueColumn CSV 中观测值所在列名
const ValueColumn = "value"

// ReadValues 读取一个 CSV 数据文件中的观测值
// 支持两种格式：带表头且包含 value 列；或每行一个数值（无表头）。
// 空行被跳过，非有限值返回错误。
func ReadValues(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	col := -1
	var out []float64
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 失败: %w", err)
		}
		line++
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		if line == 1 {
			if idx := headerIndex(rec); idx >= 0 {
				col = idx
				continue
			}
			if _, err := fastparse.ParseFinite(rec[0]); err != nil {
				return nil, fmt.Errorf("CSV 表头缺少 %s 列", ValueColumn)
			}
			col = 0
		}
		if col >= len(rec) {
			return nil, fmt.Errorf("第 %d 行缺少 %s 列", line, ValueColumn)
		}
		v, err := fastparse.ParseFinite(rec[col])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func headerIndex(rec []string) int {
	for i, h := range rec {
		if strings.EqualFold(strings.TrimSpace(h), ValueColumn) {
			return i
		}
	}
	return -1
}
