package exchange

import "context"

// Order 是管线的终端产物：一笔带风控边界的可执行订单。
// 构造后不再修改；每个周期都会构造新的 Order。
type Order struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // BUY / SELL
	Size          float64 `json:"size"`
	Price         float64 `json:"price"`
	TakeProfit    float64 `json:"take_profit"`
	StopLoss      float64 `json:"stop_loss"`
	Leverage      float64 `json:"leverage"`
	ClientOrderID string  `json:"client_order_id"`
}

// Receipt 下单回执。
type Receipt struct {
	OrderID       int64  `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
}

// Client 是交易所协作方契约：精度取整与下单都託付给它，核心不自行计算
// tick/step 取整。
type Client interface {
	RoundToTickSize(ctx context.Context, price float64, symbol string) (string, error)
	RoundToStepSize(ctx context.Context, size float64, symbol string) (string, error)
	MinOrderSize(ctx context.Context, symbol string) (float64, error)

	PlaceOrder(ctx context.Context, order Order) (Receipt, error)
}
