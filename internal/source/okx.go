package source

import (
	"encoding/json"
	"fmt"

	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/util/fastparse"
	"attacker-evaluator/internal/util/timeutil"
)

// OKX books5 频道：5 档深度推送，ts 为毫秒字符串。
// 流标识为 instId，观测值为买一卖一中间价。

// okxSubscribeRequest OKX 订阅请求
type okxSubscribeRequest struct {
	Op   string            `json:"op"`
	Args []okxSubscribeArg `json:"args"`
}

type okxSubscribeArg struct {
	Channel string `json:"channel"`
	InstId  string `json:"instId"`
}

// okxEvent 订阅响应或错误
type okxEvent struct {
	Event string `json:"event"`
	Code  string `json:"code,omitempty"`
	Msg   string `json:"msg,omitempty"`
}

type okxBooks5Message struct {
	okxEvent
	Arg  okxSubscribeArg `json:"arg"`
	Data []okxBooks5Data `json:"data"`
}

// okxBooks5Data bids/asks 格式: [[价格, 数量, 废弃, 订单数], ...]
type okxBooks5Data struct {
	Bids   [][]string `json:"bids"`
	Asks   [][]string `json:"asks"`
	Ts     string     `json:"ts"`
	InstId string     `json:"instId"`
}

type okxCodec struct{}

func (okxCodec) Subscribe(ids []string) ([]byte, error) {
	args := make([]okxSubscribeArg, 0, len(ids))
	for _, id := range ids {
		args = append(args, okxSubscribeArg{Channel: "books5", InstId: id})
	}
	return json.Marshal(okxSubscribeRequest{Op: "subscribe", Args: args})
}

func (okxCodec) Decode(data []byte) ([]model.Point, error) {
	var msg okxBooks5Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析 OKX 消息失败: %w", err)
	}
	if msg.Event == "error" {
		return nil, fmt.Errorf("OKX 返回错误: code=%s, msg=%s", msg.Code, msg.Msg)
	}
	// 订阅响应或其他频道
	if msg.Event != "" || msg.Arg.Channel != "books5" {
		return nil, nil
	}

	out := make([]model.Point, 0, len(msg.Data))
	for i := range msg.Data {
		d := &msg.Data[i]
		mid, err := midPrice(d)
		if err != nil {
			return nil, fmt.Errorf("解析 books5 数据失败: %w", err)
		}
		instId := d.InstId
		if instId == "" {
			instId = msg.Arg.InstId
		}
		exchTs, err := fastparse.ParseInt(d.Ts)
		if err != nil {
			exchTs = 0
		}
		out = append(out, model.Point{
			Stream:      instId,
			Value:       mid,
			EventTimeNs: timeutil.MsToNano(exchTs),
		})
	}
	return out, nil
}

// midPrice 买一卖一中间价
func midPrice(d *okxBooks5Data) (float64, error) {
	if len(d.Bids) == 0 || len(d.Asks) == 0 || len(d.Bids[0]) == 0 || len(d.Asks[0]) == 0 {
		return 0, fmt.Errorf("%s 缺少买一或卖一", d.InstId)
	}
	bid, err := fastparse.ParseFinite(d.Bids[0][0])
	if err != nil {
		return 0, fmt.Errorf("买一价格: %w", err)
	}
	ask, err := fastparse.ParseFinite(d.Asks[0][0])
	if err != nil {
		return 0, fmt.Errorf("卖一价格: %w", err)
	}
	return (bid + ask) / 2, nil
}
