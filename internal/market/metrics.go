package market

// OpenInterestPoint 某一时刻的全市场持仓量统计。
type OpenInterestPoint struct {
	Symbol               string  `json:"symbol"`
	SumOpenInterest      float64 `json:"sum_open_interest"`
	SumOpenInterestValue float64 `json:"sum_open_interest_value"`
	Timestamp            int64   `json:"timestamp"`
}
