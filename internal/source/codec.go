package source

import (
	"encoding/json"
	"fmt"

	"attacker-evaluator/internal/config"
	"attacker-evaluator/internal/core/model"
)

// Codec WebSocket 消息编解码
type Codec interface {
	// Subscribe 构造订阅请求，无需订阅时返回 nil
	Subscribe(ids []string) ([]byte, error)
	// Decode 解析一条推送消息；非数据消息返回 (nil, nil)
	// 返回的点只填写 Stream、Value 与 EventTimeNs。
	Decode(data []byte) ([]model.Point, error)
}

// NewCodec 按配置的消息格式创建编解码器
func NewCodec(format string) (Codec, error) {
	switch format {
	case config.WSFormatBatch, "":
		return batchCodec{}, nil
	case config.WSFormatOKXBooks5:
		return okxCodec{}, nil
	default:
		return nil, fmt.Errorf("未知消息格式: %s", format)
	}
}

// batchCodec 通用批量格式
type batchCodec struct{}

func (batchCodec) Subscribe(ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return json.Marshal(subscribeRequest{Action: "subscribe", SubstreamIDs: ids})
}

func (batchCodec) Decode(data []byte) ([]model.Point, error) {
	return ParseBatch(data)
}
