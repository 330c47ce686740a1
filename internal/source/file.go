package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"attacker-evaluator/internal/core/model"
)

// FileSource 本地 CSV 文件数据源
// 每个文件是一条流，流标识为文件名；文件依次回放。
type FileSource struct {
	paths  []string
	logger *zap.Logger
}

// NewFileSource 创建本地文件数据源
func NewFileSource(paths []string, logger *zap.Logger) *FileSource {
	return &FileSource{paths: paths, logger: logger.Named("file")}
}

// Name 数据源名称
func (s *FileSource) Name() string { return "file" }

// StreamName 文件对应的流标识
func StreamName(path string) string {
	return filepath.Base(path)
}

// Run 依次回放每个文件
func (s *FileSource) Run(ctx context.Context, out chan<- model.Point) error {
	for _, path := range s.paths {
		values, err := readFile(path)
		if err != nil {
			return err
		}
		stream := StreamName(path)
		s.logger.Info("回放文件", zap.String("path", path), zap.Int("points", len(values)))
		for i, v := range values {
			p := model.Point{Stream: stream, Index: int64(i), Value: v}
			if err := emit(ctx, out, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func readFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()
	values, err := ReadValues(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}
