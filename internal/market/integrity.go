package market

// Gap 表示缺失的连续 K 线区间。
type Gap struct {
	From  int64 `json:"from"`
	To    int64 `json:"to"`
	Count int64 `json:"count"`
}

// ContinuityReport 描述一段 K 线序列的时间覆盖情况。
type ContinuityReport struct {
	Start    int64 `json:"start"`
	End      int64 `json:"end"`
	Expected int64 `json:"expected"`
	Present  int64 `json:"present"`
	Gaps     []Gap `json:"gaps"`
}

func (r ContinuityReport) Complete() bool { return len(r.Gaps) == 0 }

// CheckContinuity 检查按 open_time 升序排列的序列中是否存在缺根。
// interval 无法解析或序列不足两根时返回 Complete 的报告。
func CheckContinuity(candles []Candle, interval string) ContinuityReport {
	var report ContinuityReport
	if len(candles) == 0 {
		return report
	}
	report.Start = candles[0].OpenTime
	report.End = candles[len(candles)-1].OpenTime
	report.Present = int64(len(candles))
	d, ok := IntervalDuration(interval)
	if !ok || len(candles) < 2 {
		report.Expected = report.Present
		return report
	}
	step := d.Milliseconds()
	report.Expected = (report.End-report.Start)/step + 1

	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].OpenTime
		cur := candles[i].OpenTime
		missing := (cur - prev) / step
		if missing <= 1 {
			continue
		}
		report.Gaps = append(report.Gaps, Gap{
			From:  prev + step,
			To:    cur - step,
			Count: missing - 1,
		})
	}
	return report
}
