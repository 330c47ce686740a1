package jsonl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckpointPath 返回流检查点文件路径: <dir>/snapshot-<stream>.json
// 流标识中的路径分隔符替换为下划线。
func CheckpointPath(dir, stream string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(stream)
	return filepath.Join(dir, "snapshot-"+name+".json")
}

// WriteJSONFile 原子写入 JSON 文件（先写临时文件再 rename）
func WriteJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("编码 JSON 失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换文件失败: %w", err)
	}
	return nil
}

// ReadJSONFile 读取 JSON 文件到 v
// 文件不存在时返回的错误满足 errors.Is(err, os.ErrNotExist)。
func ReadJSONFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("读取文件失败: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("解析 JSON 失败 %s: %w", path, err)
	}
	return nil
}
