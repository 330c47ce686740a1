package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/util/backoff"
)

// maxFetchAttempts 单个文件的最大请求次数（含首次）
const maxFetchAttempts = 3

// errNotFound 远程文件不存在，表示该流已无更多文件
var errNotFound = errors.New("远程文件不存在")

// RemoteSource 远程编号 CSV 文件数据源
// 地址模板中的 {stream} 与 {file} 被替换为流标识与文件编号（从 1 开始），
// 直到返回 404 或达到 maxFiles。同一条流跨文件连续编号。
type RemoteSource struct {
	urlTemplate string
	streamIDs   []string
	maxFiles    int
	client      *http.Client
	logger      *zap.Logger
	newBackoff  func() *backoff.Backoff
}

// NewRemoteSource 创建远程文件数据源
// 参数 urlTemplate: 地址模板，需包含 {file}
// 参数 streamIDs: 流标识列表
// 参数 maxFiles: 每条流最多读取的文件数，<=0 表示直到 404
// 参数 timeoutMs: HTTP 请求超时（毫秒）
func NewRemoteSource(urlTemplate string, streamIDs []string, maxFiles, timeoutMs int, logger *zap.Logger) *RemoteSource {
	return &RemoteSource{
		urlTemplate: urlTemplate,
		streamIDs:   streamIDs,
		maxFiles:    maxFiles,
		client: &http.Client{
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
		logger:     logger.Named("remote"),
		newBackoff: backoff.NewDefault,
	}
}

// Name 数据源名称
func (s *RemoteSource) Name() string { return "remote" }

// URL 生成指定流第 file 个文件的地址
func (s *RemoteSource) URL(stream string, file int) string {
	return strings.NewReplacer("{stream}", stream, "{file}", strconv.Itoa(file)).Replace(s.urlTemplate)
}

// Run 依次拉取每条流的全部文件
func (s *RemoteSource) Run(ctx context.Context, out chan<- model.Point) error {
	for _, stream := range s.streamIDs {
		var idx int64
		for file := 1; s.maxFiles <= 0 || file <= s.maxFiles; file++ {
			url := s.URL(stream, file)
			values, err := s.fetch(ctx, url)
			if errors.Is(err, errNotFound) {
				s.logger.Info("流已读取完毕", zap.String("stream", stream), zap.Int("files", file-1))
				break
			}
			if err != nil {
				return fmt.Errorf("拉取流 %s 第 %d 个文件失败: %w", stream, file, err)
			}
			s.logger.Debug("已拉取文件", zap.String("url", url), zap.Int("points", len(values)))
			for _, v := range values {
				if err := emit(ctx, out, model.Point{Stream: stream, Index: idx, Value: v}); err != nil {
					return err
				}
				idx++
			}
		}
	}
	return nil
}

// fetch 拉取并解析单个文件，临时错误按退避重试
func (s *RemoteSource) fetch(ctx context.Context, url string) ([]float64, error) {
	bo := s.newBackoff()
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			s.logger.Warn("请求失败，准备重试", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(lastErr))
			if err := bo.Wait(ctx); err != nil {
				return nil, err
			}
		}
		body, err := s.doRequest(ctx, url)
		if err == nil {
			return ReadValues(bytes.NewReader(body))
		}
		if errors.Is(err, errNotFound) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// doRequest 执行 HTTP GET 请求
func (s *RemoteSource) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "attacker-evaluator/1.0")
	req.Header.Set("Accept", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	return body, nil
}
