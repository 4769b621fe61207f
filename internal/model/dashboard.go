package model

import "time"

type DashboardKPIs struct {
	WaitingCount      int64     `json:"waiting_count"`
	InboundTodayCount int64     `json:"inbound_today_count"`
	InboundMonthCount int64     `json:"inbound_month_count"`
	Month             int       `json:"month"`
	GeneratedAt       time.Time `json:"generated_at"`
}
