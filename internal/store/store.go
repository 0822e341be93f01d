package store

import "context"

// CycleRecord 一个决策周期的完整审计快照，JSON 字段存原始载荷。
type CycleRecord struct {
	CycleID  string
	Symbol   string
	Price    float64
	Opinions []byte
	Bracket  []byte
	Decision []byte
	Warnings []byte
}

// StageLog 单次模型请求/响应的审计行。
type StageLog struct {
	CycleID     string
	Stage       string
	Model       string
	Input       string
	Output      string
	Explanation string
}

// OrderRecord 已合成（不一定已成交）订单的落库形态。
type OrderRecord struct {
	CycleID       string
	ClientOrderID string
	Symbol        string
	Side          string
	Size          float64
	Price         float64
	TakeProfit    float64
	StopLoss      float64
	Leverage      float64
	Status        string
}

// Store 审计落库契约。全部 best-effort：落库失败只影响审计，
// 绝不反过来影响交易决策。
type Store interface {
	SaveCycle(ctx context.Context, rec CycleRecord) error
	LogStage(ctx context.Context, l StageLog) error
	SaveOrder(ctx context.Context, rec OrderRecord) error
	Close() error
}
