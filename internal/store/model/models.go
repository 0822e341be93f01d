package model

import (
	"gorm.io/datatypes"
)

type CycleModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	CycleID       string         `gorm:"column:cycle_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index"`
	Price         float64        `gorm:"column:price"`
	OpinionsJSON  datatypes.JSON `gorm:"column:opinions_json;type:TEXT"`
	BracketJSON   datatypes.JSON `gorm:"column:bracket_json;type:TEXT"`
	DecisionJSON  datatypes.JSON `gorm:"column:decision_json;type:TEXT"`
	WarningsJSON  datatypes.JSON `gorm:"column:warnings_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (CycleModel) TableName() string { return "cycles" }

type StageLogModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	CycleID       string `gorm:"column:cycle_id;index"`
	Stage         string `gorm:"column:stage"`
	Model         string `gorm:"column:model"`
	Input         string `gorm:"column:input;type:TEXT"`
	Output        string `gorm:"column:output;type:TEXT"`
	Explanation   string `gorm:"column:explanation;type:TEXT"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (StageLogModel) TableName() string { return "stage_logs" }

type OrderModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	CycleID       string  `gorm:"column:cycle_id;index"`
	ClientOrderID string  `gorm:"column:client_order_id;uniqueIndex"`
	Symbol        string  `gorm:"column:symbol"`
	Side          string  `gorm:"column:side"`
	Size          float64 `gorm:"column:size"`
	Price         float64 `gorm:"column:price"`
	TakeProfit    float64 `gorm:"column:take_profit"`
	StopLoss      float64 `gorm:"column:stop_loss"`
	Leverage      float64 `gorm:"column:leverage"`
	Status        string  `gorm:"column:status"`
	CreatedAtUnix int64   `gorm:"column:created_at"`
}

func (OrderModel) TableName() string { return "orders" }
