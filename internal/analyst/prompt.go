package analyst

import (
	"fmt"
	"strings"

	"quorum/internal/gateway/market"
)

// buildSystemPrompt 由人设拼出确定性的 system 提示词骨架。
func buildSystemPrompt(p Persona) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("You are %s, a %s analyst.\n", p.Name, p.Methodology))
	if p.Style != "" {
		b.WriteString("Style: " + p.Style + "\n")
	}
	if p.RiskTolerance != "" {
		b.WriteString("Risk tolerance: " + p.RiskTolerance + "\n")
	}
	b.WriteString("Analyze the provided market context using your methodology and respond with a single JSON object only.\n")
	return b.String()
}

func buildUserPrompt(tctx market.TradingContext) string {
	var b strings.Builder
	b.WriteString("# Market Context\n")
	b.WriteString(fmt.Sprintf("symbol: %s\n", tctx.Symbol))
	b.WriteString(fmt.Sprintf("price: %.6f\n", tctx.Snapshot.Price))
	b.WriteString(fmt.Sprintf("24h: high=%.6f low=%.6f volume=%.2f change=%.2f%%\n",
		tctx.Snapshot.High24h, tctx.Snapshot.Low24h, tctx.Snapshot.Volume24h, tctx.Snapshot.Change24hPct))
	b.WriteString(fmt.Sprintf("account_balance_usd: %.2f\n", tctx.Balance))
	if len(tctx.Positions) == 0 {
		b.WriteString("open_positions: none\n")
	} else {
		b.WriteString("open_positions:\n")
		for _, p := range tctx.Positions {
			b.WriteString(fmt.Sprintf("- %s %s qty=%.6f entry=%.6f upnl=%.2f (%.2f%%)\n",
				p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.UnrealizedPn, p.UnrealizedPnPct))
		}
	}
	return b.String()
}
