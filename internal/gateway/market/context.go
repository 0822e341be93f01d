package market

import "context"

// PositionSnapshot 提供给模型与风控的仓位摘要。
type PositionSnapshot struct {
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	EntryPrice      float64 `json:"entry_price"`
	Quantity        float64 `json:"quantity"`
	Leverage        float64 `json:"leverage"`
	UnrealizedPn    float64 `json:"unrealized_pn"`
	UnrealizedPnPct float64 `json:"unrealized_pn_pct"`
}

// Snapshot 单币种行情切片。
type Snapshot struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	High24h      float64 `json:"high_24h"`
	Low24h       float64 `json:"low_24h"`
	Volume24h    float64 `json:"volume_24h"`
	Change24hPct float64 `json:"change_24h_pct"`
}

// TradingContext 是一个决策周期的共享输入：账户、持仓与行情快照。
// 管线只读取它，不回写。
type TradingContext struct {
	Symbol    string
	Balance   float64
	Positions []PositionSnapshot
	Snapshot  Snapshot
}

// HasOpenPosition reports whether the context carries a live position for
// its symbol.
func (t TradingContext) HasOpenPosition() bool {
	for _, p := range t.Positions {
		if p.Symbol == t.Symbol && p.Quantity != 0 {
			return true
		}
	}
	return false
}

// Source 构建决策上下文（对核心管线是不透明读取）。
type Source interface {
	BuildContext(ctx context.Context, symbol string) (TradingContext, error)
}
