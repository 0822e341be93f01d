package risk

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"quorum/internal/analyst"
	"quorum/internal/arbiter"
	"quorum/internal/config"
	"quorum/internal/gateway/exchange"
	"quorum/internal/gateway/market"
	"quorum/internal/logger"
)

// Synthesizer 把裁决结果转成一笔边界收敛的可执行订单。
// 精度取整全部託付交易所客户端，这里只做风控数学。
type Synthesizer struct {
	cfg config.RiskConfig
	ex  exchange.Client
}

func New(cfg config.RiskConfig, ex exchange.Client) *Synthesizer {
	return &Synthesizer{cfg: cfg, ex: ex}
}

// Result 包含可能为空的订单与归一化过程中累积的警告。
type Result struct {
	Order    *exchange.Order
	Warnings []string
}

// Synthesize 执行 决策 → 订单 的归一化。HOLD 或无胜者时不产单；
// 参数不安全时返回 RiskError，放弃当周期下单。
func (s *Synthesizer) Synthesize(ctx context.Context, d arbiter.Decision, tctx market.TradingContext, caps Caps) (Result, error) {
	var res Result

	switch d.FinalAction {
	case arbiter.ActionHold:
		return res, nil
	case arbiter.ActionClose, arbiter.ActionReduce:
		return s.synthesizeClose(ctx, d, tctx)
	}
	if d.WinnerAgentID == arbiter.WinnerNone || d.FinalRecommendation == nil {
		return res, nil
	}
	if caps.CloseOnly {
		res.Warnings = append(res.Warnings, "circuit breaker is close-only, suppressing new position")
		return res, nil
	}

	rec := *d.FinalRecommendation
	price := tctx.Snapshot.Price
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return res, riskErrorf("market price %v is unusable", price)
	}
	if tctx.Balance <= 0 {
		return res, riskErrorf("account balance %.2f cannot fund a new position", tctx.Balance)
	}

	long := d.FinalAction == arbiter.ActionBuy

	pct := s.positionPct(rec, d.Adjustments, &res)
	lev, err := s.leverage(rec, d.Adjustments, caps, &res)
	if err != nil {
		return res, err
	}
	tp, sl := s.brackets(rec, d.Adjustments, price, long, &res)

	size := decimal.NewFromFloat(tctx.Balance).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromFloat(price)).
		InexactFloat64()
	minSize, err := s.ex.MinOrderSize(ctx, tctx.Symbol)
	if err != nil {
		return res, fmt.Errorf("query min order size: %w", err)
	}
	if size < minSize {
		res.Warnings = append(res.Warnings, fmt.Sprintf("size %.8f below exchange minimum, raised to %.8f", size, minSize))
		size = minSize
	}

	order := exchange.Order{
		Symbol:        tctx.Symbol,
		Side:          string(d.FinalAction),
		Leverage:      lev,
		ClientOrderID: "quorum-" + uuid.NewString(),
	}
	if order.Price, err = s.roundPrice(ctx, price, tctx.Symbol); err != nil {
		return res, err
	}
	if order.TakeProfit, err = s.roundPrice(ctx, tp, tctx.Symbol); err != nil {
		return res, err
	}
	if order.StopLoss, err = s.roundPrice(ctx, sl, tctx.Symbol); err != nil {
		return res, err
	}
	sized, err := s.ex.RoundToStepSize(ctx, size, tctx.Symbol)
	if err != nil {
		return res, fmt.Errorf("round size: %w", err)
	}
	if order.Size, err = strconv.ParseFloat(sized, 64); err != nil {
		return res, fmt.Errorf("parse rounded size %q: %w", sized, err)
	}

	logger.Infof("订单合成 %s %s size=%.6f lev=%.1fx tp=%.4f sl=%.4f (pct=%.2f%%)",
		order.Side, order.Symbol, order.Size, order.Leverage, order.TakeProfit, order.StopLoss, pct)
	res.Order = &order
	return res, nil
}

// positionPct 观点的 1–10 档乘配置上限，按置信度上下微调，
// 裁决 allocation 覆盖在 clamp 之前生效。
func (s *Synthesizer) positionPct(rec analyst.Opinion, adj *arbiter.Adjustments, res *Result) float64 {
	pct := float64(rec.PositionSize) * s.cfg.MaxPositionPct / 10
	switch {
	case rec.Confidence < 40:
		pct *= 0.5
	case rec.Confidence > 75:
		pct *= 1.25
	}
	if adj != nil && adj.Allocation != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("judge overrode allocation to %.2f%%", *adj.Allocation))
		pct = *adj.Allocation
	}
	if pct < s.cfg.MinPositionPct {
		pct = s.cfg.MinPositionPct
	}
	if pct > s.cfg.MaxPositionPct {
		pct = s.cfg.MaxPositionPct
	}
	return pct
}

// leverage 风险档位定基础杠杆，裁决覆盖先于 clamp，外部安全上限永远赢。
func (s *Synthesizer) leverage(rec analyst.Opinion, adj *arbiter.Adjustments, caps Caps, res *Result) (float64, error) {
	lev, ok := leverageByRisk[rec.RiskLevel]
	if !ok {
		lev = leverageByRisk[analyst.RiskVeryHigh]
	}
	if adj != nil && adj.Leverage != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("judge overrode leverage to %.1fx", *adj.Leverage))
		lev = *adj.Leverage
	}
	ceiling := s.cfg.MaxLeverage
	if caps.MaxLeverage > 0 && caps.MaxLeverage < ceiling {
		ceiling = caps.MaxLeverage
	}
	if ceiling > 0 && lev > ceiling {
		res.Warnings = append(res.Warnings, fmt.Sprintf("leverage %.1fx clamped to ceiling %.1fx", lev, ceiling))
		lev = ceiling
	}
	if math.IsNaN(lev) || math.IsInf(lev, 0) || lev <= 0 {
		return 0, riskErrorf("leverage %v is unsafe after adjustments", lev)
	}
	return lev, nil
}

// brackets 由目标价按方向推导止盈止损：多单 TP=base SL=bear，空单反之。
// 推导值在价格错侧时退回固定百分比，再收敛进最大距离与方法论止损上限。
func (s *Synthesizer) brackets(rec analyst.Opinion, adj *arbiter.Adjustments, price float64, long bool, res *Result) (tp, sl float64) {
	if long {
		tp, sl = rec.PriceTarget.Base, rec.PriceTarget.Bear
	} else {
		tp, sl = rec.PriceTarget.Bear, rec.PriceTarget.Bull
	}
	if adj != nil {
		if adj.TakeProfit != nil {
			tp = *adj.TakeProfit
		}
		if adj.StopLoss != nil {
			sl = *adj.StopLoss
		}
	}

	// 错侧修正
	if (long && tp <= price) || (!long && tp >= price) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("take profit %.4f on wrong side of price, using %.2f%% fallback", tp, s.cfg.FallbackTPPct))
		tp = fallbackLevel(price, s.cfg.FallbackTPPct, long)
	}
	if (long && sl >= price) || (!long && sl <= price) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("stop loss %.4f on wrong side of price, using %.2f%% fallback", sl, s.cfg.FallbackSLPct))
		sl = fallbackLevel(price, s.cfg.FallbackSLPct, !long)
	}

	tp = clampDistance(tp, price, s.cfg.MaxTPDistancePct, long)
	slCap := s.slCapPct(rec.Methodology, res)
	maxSL := s.cfg.MaxSLDistancePct
	if slCap < maxSL {
		maxSL = slCap
	}
	sl = clampDistance(sl, price, maxSL, !long)
	return tp, sl
}

// slCapPct 取全局默认与方法论专属上限中更紧的一档；方法论缺配置时
// 记警告并退回全局默认。
func (s *Synthesizer) slCapPct(methodology string, res *Result) float64 {
	limit := s.cfg.DefaultMaxSLPct
	m, ok := s.cfg.MethodologySLPct[methodology]
	if !ok {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no stop-loss cap configured for methodology %q, using global default %.2f%%", methodology, limit))
		return limit
	}
	if m < limit {
		limit = m
	}
	return limit
}

// fallbackLevel 价格上方或下方 pct% 处的固定档位。
func fallbackLevel(price, pct float64, above bool) float64 {
	if above {
		return price * (1 + pct/100)
	}
	return price * (1 - pct/100)
}

// clampDistance 把 level 拉回距价格 maxPct% 的范围内，above 指明
// level 应位于价格上方。
func clampDistance(level, price, maxPct float64, above bool) float64 {
	if maxPct <= 0 {
		return level
	}
	if above {
		limit := price * (1 + maxPct/100)
		if level > limit {
			return limit
		}
		return level
	}
	limit := price * (1 - maxPct/100)
	if level < limit {
		return limit
	}
	return level
}

func (s *Synthesizer) roundPrice(ctx context.Context, v float64, symbol string) (float64, error) {
	str, err := s.ex.RoundToTickSize(ctx, v, symbol)
	if err != nil {
		return 0, fmt.Errorf("round price: %w", err)
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rounded price %q: %w", str, err)
	}
	return f, nil
}

// synthesizeClose 应急平仓/减仓：按现有持仓反向市价出场，不挂新括号单。
func (s *Synthesizer) synthesizeClose(ctx context.Context, d arbiter.Decision, tctx market.TradingContext) (Result, error) {
	var res Result
	var pos *market.PositionSnapshot
	for i := range tctx.Positions {
		if tctx.Positions[i].Symbol == tctx.Symbol && tctx.Positions[i].Quantity != 0 {
			pos = &tctx.Positions[i]
			break
		}
	}
	if pos == nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s requested but no open position on %s", d.FinalAction, tctx.Symbol))
		return res, nil
	}

	size := math.Abs(pos.Quantity)
	if d.FinalAction == arbiter.ActionReduce {
		size /= 2
	}
	// 持仓来源记空头为 side=short、数量取绝对值，也兼容带符号数量。
	side := "SELL"
	if pos.Quantity < 0 || strings.EqualFold(pos.Side, "short") {
		side = "BUY"
	}
	sized, err := s.ex.RoundToStepSize(ctx, size, tctx.Symbol)
	if err != nil {
		return res, fmt.Errorf("round close size: %w", err)
	}
	f, err := strconv.ParseFloat(sized, 64)
	if err != nil {
		return res, fmt.Errorf("parse rounded size %q: %w", sized, err)
	}
	res.Order = &exchange.Order{
		Symbol:        tctx.Symbol,
		Side:          side,
		Size:          f,
		Price:         tctx.Snapshot.Price,
		Leverage:      pos.Leverage,
		ClientOrderID: "quorum-" + uuid.NewString(),
	}
	logger.Infof("应急%s %s %s size=%.6f", d.FinalAction, side, tctx.Symbol, f)
	return res, nil
}
