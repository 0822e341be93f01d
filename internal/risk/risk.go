package risk

import (
	"fmt"

	"quorum/internal/analyst"
)

// RiskError 表示算出的订单参数不安全或输入不可用。此类错误当周期
// 不可恢复：放弃下单，绝不悄悄 clamp 成一笔危险交易。
type RiskError struct {
	Reason string
}

func (e *RiskError) Error() string { return "risk: " + e.Reason }

func riskErrorf(format string, args ...any) *RiskError {
	return &RiskError{Reason: fmt.Sprintf(format, args...)}
}

// 风险档位对应的杠杆上限。
var leverageByRisk = map[analyst.RiskLevel]float64{
	analyst.RiskLow:      5,
	analyst.RiskMedium:   4,
	analyst.RiskHigh:     3,
	analyst.RiskVeryHigh: 2,
}

// Caps 外部安全系统（熔断器）供给的硬上限。
type Caps struct {
	MaxLeverage float64 // 0 表示外部无额外限制
	CloseOnly   bool
}
