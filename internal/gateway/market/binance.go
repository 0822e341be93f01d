package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"quorum/internal/logger"

	"github.com/adshao/go-binance/v2/futures"
)

// BinanceSource 基于 go-binance futures SDK 读取账户与行情。
type BinanceSource struct {
	client *futures.Client
}

type BinanceConfig struct {
	RESTBaseURL string
	APIKey      string
	APISecret   string
	HTTPTimeout time.Duration
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	if cfg.HTTPTimeout > 0 {
		client.HTTPClient.Timeout = cfg.HTTPTimeout
	}
	return &BinanceSource{client: client}
}

func (s *BinanceSource) BuildContext(ctx context.Context, symbol string) (TradingContext, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return TradingContext{}, fmt.Errorf("market: symbol is required")
	}
	out := TradingContext{Symbol: symbol}

	balances, err := s.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return TradingContext{}, fmt.Errorf("market: fetch balance: %w", err)
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			out.Balance = parseF(b.AvailableBalance)
			break
		}
	}

	stats, err := s.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return TradingContext{}, fmt.Errorf("market: fetch 24h stats: %w", err)
	}
	if len(stats) == 0 {
		return TradingContext{}, fmt.Errorf("market: no stats for %s", symbol)
	}
	st := stats[0]
	out.Snapshot = Snapshot{
		Symbol:       symbol,
		Price:        parseF(st.LastPrice),
		High24h:      parseF(st.HighPrice),
		Low24h:       parseF(st.LowPrice),
		Volume24h:    parseF(st.Volume),
		Change24hPct: parseF(st.PriceChangePercent),
	}

	risks, err := s.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		// 持仓读取失败降级为空仓（只影响提示词内容，不影响风控硬校验）
		logger.Warnf("market: fetch positions for %s failed: %v", symbol, err)
		return out, nil
	}
	for _, r := range risks {
		qty := parseF(r.PositionAmt)
		if qty == 0 {
			continue
		}
		side := "long"
		if qty < 0 {
			side = "short"
			qty = -qty
		}
		entry := parseF(r.EntryPrice)
		pnl := parseF(r.UnRealizedProfit)
		pos := PositionSnapshot{
			Symbol:       r.Symbol,
			Side:         side,
			EntryPrice:   entry,
			Quantity:     qty,
			Leverage:     parseF(r.Leverage),
			UnrealizedPn: pnl,
		}
		if notional := entry * qty; notional > 0 {
			pos.UnrealizedPnPct = pnl / notional * 100
		}
		out.Positions = append(out.Positions, pos)
	}
	return out, nil
}

func parseF(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
