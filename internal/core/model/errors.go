package model

import "errors"

var (
	// ErrInvalidDecision 非法决策：非零方向但 horizon 非正、方向非有限值等
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrMalformedSnapshot 快照结构非法：缺少必填标量或数据自相矛盾
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)
