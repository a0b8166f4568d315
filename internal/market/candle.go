package market

import "time"

// Candle 表示一根已收线或进行中的 K 线，时间戳为毫秒。
type Candle struct {
	OpenTime        int64   `json:"open_time"`
	CloseTime       int64   `json:"close_time"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	Trades          int64   `json:"trades"`
	TakerBuyVolume  float64 `json:"taker_buy_volume,omitempty"`
	TakerSellVolume float64 `json:"taker_sell_volume,omitempty"`
}

// Range 返回最高价与最低价之差。
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Body 返回实体长度（开收盘价差的绝对值）。
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// IsBullish 收盘高于开盘。
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// Contains 判断 c 的价格区间是否完全包含 other。
func (c Candle) Contains(other Candle) bool {
	return c.High >= other.High && c.Low <= other.Low
}

// IntervalDuration 把 Binance 风格的周期字符串转换为时长。
// 支持 m/h/d/w，未知格式返回 false。
func IntervalDuration(interval string) (time.Duration, bool) {
	if len(interval) < 2 {
		return 0, false
	}
	unit := interval[len(interval)-1]
	n := 0
	for _, r := range interval[:len(interval)-1] {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
