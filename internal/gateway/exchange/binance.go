package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"quorum/internal/logger"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// Binance 通过 futures exchangeInfo 的 filters 做精度取整，并负责下单。
type Binance struct {
	client *futures.Client
	dryRun bool

	mu      sync.Mutex
	filters map[string]symbolFilters
}

type symbolFilters struct {
	tickSize decimal.Decimal
	stepSize decimal.Decimal
	minQty   decimal.Decimal
}

type BinanceConfig struct {
	RESTBaseURL string
	APIKey      string
	APISecret   string
	HTTPTimeout time.Duration
	DryRun      bool
}

func NewBinance(cfg BinanceConfig) *Binance {
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	if cfg.HTTPTimeout > 0 {
		client.HTTPClient.Timeout = cfg.HTTPTimeout
	}
	return &Binance{client: client, dryRun: cfg.DryRun, filters: make(map[string]symbolFilters)}
}

func (b *Binance) symbolFilters(ctx context.Context, symbol string) (symbolFilters, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	b.mu.Lock()
	if f, ok := b.filters[symbol]; ok {
		b.mu.Unlock()
		return f, nil
	}
	b.mu.Unlock()

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return symbolFilters{}, fmt.Errorf("exchange: fetch exchangeInfo: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		pf := s.PriceFilter()
		lf := s.LotSizeFilter()
		if pf == nil || lf == nil {
			return symbolFilters{}, fmt.Errorf("exchange: %s missing price/lot filters", symbol)
		}
		tick, err := decimal.NewFromString(pf.TickSize)
		if err != nil {
			return symbolFilters{}, fmt.Errorf("exchange: bad tick size %q: %w", pf.TickSize, err)
		}
		step, err := decimal.NewFromString(lf.StepSize)
		if err != nil {
			return symbolFilters{}, fmt.Errorf("exchange: bad step size %q: %w", lf.StepSize, err)
		}
		minQty, err := decimal.NewFromString(lf.MinQuantity)
		if err != nil {
			return symbolFilters{}, fmt.Errorf("exchange: bad min quantity %q: %w", lf.MinQuantity, err)
		}
		f := symbolFilters{tickSize: tick, stepSize: step, minQty: minQty}
		b.mu.Lock()
		b.filters[symbol] = f
		b.mu.Unlock()
		return f, nil
	}
	return symbolFilters{}, fmt.Errorf("exchange: unknown symbol %s", symbol)
}

// roundToIncrement 向下取整到增量的整数倍（交易所拒绝超精度值，宁可少不可多）。
func roundToIncrement(v float64, inc decimal.Decimal) string {
	if inc.IsZero() {
		return decimal.NewFromFloat(v).String()
	}
	d := decimal.NewFromFloat(v)
	steps := d.Div(inc).Floor()
	return steps.Mul(inc).String()
}

func (b *Binance) RoundToTickSize(ctx context.Context, price float64, symbol string) (string, error) {
	f, err := b.symbolFilters(ctx, symbol)
	if err != nil {
		return "", err
	}
	return roundToIncrement(price, f.tickSize), nil
}

func (b *Binance) RoundToStepSize(ctx context.Context, size float64, symbol string) (string, error) {
	f, err := b.symbolFilters(ctx, symbol)
	if err != nil {
		return "", err
	}
	return roundToIncrement(size, f.stepSize), nil
}

func (b *Binance) MinOrderSize(ctx context.Context, symbol string) (float64, error) {
	f, err := b.symbolFilters(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return f.minQty.InexactFloat64(), nil
}

// PlaceOrder 以市价开仓并挂 TP/SL（closePosition 市价触发单）。
func (b *Binance) PlaceOrder(ctx context.Context, order Order) (Receipt, error) {
	qty, err := b.RoundToStepSize(ctx, order.Size, order.Symbol)
	if err != nil {
		return Receipt{}, err
	}
	if b.dryRun {
		logger.Infof("[exchange] dry-run order %s %s qty=%s lev=%.1f tp=%.4f sl=%.4f",
			order.Side, order.Symbol, qty, order.Leverage, order.TakeProfit, order.StopLoss)
		return Receipt{ClientOrderID: order.ClientOrderID, Status: "DRY_RUN"}, nil
	}

	if order.Leverage > 0 {
		if _, err := b.client.NewChangeLeverageService().
			Symbol(order.Symbol).Leverage(int(order.Leverage)).Do(ctx); err != nil {
			return Receipt{}, fmt.Errorf("exchange: set leverage: %w", err)
		}
	}

	side := futures.SideTypeBuy
	closeSide := futures.SideTypeSell
	if strings.EqualFold(order.Side, "SELL") {
		side = futures.SideTypeSell
		closeSide = futures.SideTypeBuy
	}
	resp, err := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewClientOrderID(order.ClientOrderID).
		Do(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("exchange: place order: %w", err)
	}

	if order.StopLoss > 0 {
		sl, err := b.RoundToTickSize(ctx, order.StopLoss, order.Symbol)
		if err == nil {
			_, err = b.client.NewCreateOrderService().
				Symbol(order.Symbol).
				Side(closeSide).
				Type(futures.OrderTypeStopMarket).
				StopPrice(sl).
				ClosePosition(true).
				Do(ctx)
		}
		if err != nil {
			logger.Errorf("[exchange] stop-loss order failed for %s: %v", order.Symbol, err)
		}
	}
	if order.TakeProfit > 0 {
		tp, err := b.RoundToTickSize(ctx, order.TakeProfit, order.Symbol)
		if err == nil {
			_, err = b.client.NewCreateOrderService().
				Symbol(order.Symbol).
				Side(closeSide).
				Type(futures.OrderTypeTakeProfitMarket).
				StopPrice(tp).
				ClosePosition(true).
				Do(ctx)
		}
		if err != nil {
			logger.Errorf("[exchange] take-profit order failed for %s: %v", order.Symbol, err)
		}
	}

	return Receipt{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Status:        string(resp.Status),
	}, nil
}
