// Package analytics computes risk and return statistics from a finished
// portfolio snapshot and its fill history. Everything here is a pure
// function: calling it twice on the same inputs yields identical output.
package analytics

import (
	"math"
	"sort"
	"time"

	"replay/internal/domain"
	"replay/internal/portfolio"
)

// Trading days per year, used for annualization.
const tradingDaysPerYear = 252

// Drawdowns shallower than this do not count toward drawdown duration.
const drawdownFloor = 0.001

// MonthlyReturn is the equity change over one calendar month.
type MonthlyReturn struct {
	Year   int
	Month  time.Month
	Return float64
}

// Metrics is the flat record of derived statistics for one run. Ratio fields
// are 0 whenever their denominator is 0; benchmark-relative fields are 0
// unless a benchmark series of matching length was supplied.
type Metrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64
	SortinoRatio     float64
	MaxDrawdown      float64
	CalmarRatio      float64
	DrawdownDuration int // longest consecutive marks in drawdown
	VaR95            float64
	CVaR95           float64
	MonthlyReturns   []MonthlyReturn

	Beta             float64
	Alpha            float64
	TrackingError    float64
	InformationRatio float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	ProfitFactor  float64
	AvgWin        float64
	AvgLoss       float64
}

// Params configures a metrics calculation.
type Params struct {
	InitialCapital float64
	RiskFreeRate   float64 // annualized, e.g. 0.02

	// BenchmarkReturns enables beta/alpha/tracking error/information ratio
	// when its length matches the snapshot's return series.
	BenchmarkReturns []float64
}

// Calculate derives all metrics from the snapshot and the run's fills.
func Calculate(snap portfolio.Snapshot, fills []domain.Fill, p Params) Metrics {
	var m Metrics

	if p.InitialCapital > 0 {
		m.TotalReturn = (snap.TotalValue - p.InitialCapital) / p.InitialCapital
	}

	returns := snap.DailyReturns
	if days := len(returns); days > 0 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, tradingDaysPerYear/float64(days)) - 1
	}

	m.Volatility = populationStdDev(returns) * math.Sqrt(tradingDaysPerYear)
	if m.Volatility != 0 {
		m.SharpeRatio = (m.AnnualizedReturn - p.RiskFreeRate) / m.Volatility
	}

	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if downside := populationStdDev(negatives) * math.Sqrt(tradingDaysPerYear); downside != 0 {
		m.SortinoRatio = (m.AnnualizedReturn - p.RiskFreeRate) / downside
	}

	m.MaxDrawdown, m.DrawdownDuration = drawdownStats(snap.Drawdowns)
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
	}

	m.VaR95, m.CVaR95 = tailStats(returns)
	m.MonthlyReturns = monthlyReturns(snap.EquityCurve)

	if len(p.BenchmarkReturns) > 0 && len(p.BenchmarkReturns) == len(returns) {
		m.Beta, m.Alpha, m.TrackingError, m.InformationRatio = benchmarkStats(returns, p.BenchmarkReturns)
	}

	trades := PairRoundTrips(fills)
	m.TotalTrades = len(trades)
	var grossWin, grossLoss float64
	for _, tr := range trades {
		if tr.PnL > 0 {
			m.WinningTrades++
			grossWin += tr.PnL
		} else {
			m.LosingTrades++
			grossLoss += -tr.PnL
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if grossLoss != 0 {
		m.ProfitFactor = grossWin / grossLoss
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -grossLoss / float64(m.LosingTrades)
	}

	return m
}

// populationStdDev returns the population standard deviation (divisor n).
func populationStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// drawdownStats returns the deepest drawdown and the longest consecutive run
// of marks with drawdown beyond the floor.
func drawdownStats(dds []portfolio.DrawdownPoint) (maxDD float64, duration int) {
	var run int
	for _, dd := range dds {
		if dd.Drawdown > maxDD {
			maxDD = dd.Drawdown
		}
		if dd.Drawdown > drawdownFloor {
			run++
			if run > duration {
				duration = run
			}
		} else {
			run = 0
		}
	}
	return maxDD, duration
}

// tailStats returns the 95% value-at-risk (the return at the 5th percentile)
// and the conditional VaR (mean of the tail at or below it).
func tailStats(returns []float64) (var95, cvar95 float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(math.Floor(float64(len(sorted)) * 0.05))
	var95 = sorted[idx]
	cvar95 = mean(sorted[:idx+1])
	return var95, cvar95
}

// monthlyReturns computes the equity change between the closing values of
// consecutive calendar months on the curve.
func monthlyReturns(curve []portfolio.EquityPoint) []MonthlyReturn {
	if len(curve) == 0 {
		return nil
	}

	var out []MonthlyReturn
	prevClose := curve[0].Value
	last := curve[0]
	for _, pt := range curve[1:] {
		if pt.Timestamp.Month() != last.Timestamp.Month() || pt.Timestamp.Year() != last.Timestamp.Year() {
			if prevClose > 0 {
				out = append(out, MonthlyReturn{
					Year:   last.Timestamp.Year(),
					Month:  last.Timestamp.Month(),
					Return: (last.Value - prevClose) / prevClose,
				})
			}
			prevClose = last.Value
		}
		last = pt
	}
	if prevClose > 0 {
		out = append(out, MonthlyReturn{
			Year:   last.Timestamp.Year(),
			Month:  last.Timestamp.Month(),
			Return: (last.Value - prevClose) / prevClose,
		})
	}
	return out
}

// benchmarkStats computes beta, annualized alpha, tracking error, and the
// information ratio of the portfolio returns versus the benchmark returns.
// The two series must be the same length.
func benchmarkStats(port, bench []float64) (beta, alpha, trackingError, informationRatio float64) {
	benchVar := populationStdDev(bench)
	benchVar *= benchVar
	if benchVar != 0 {
		mp, mb := mean(port), mean(bench)
		var cov float64
		for i := range port {
			cov += (port[i] - mp) * (bench[i] - mb)
		}
		cov /= float64(len(port))
		beta = cov / benchVar
		alpha = (mp - beta*mb) * tradingDaysPerYear
	}

	diff := make([]float64, len(port))
	for i := range port {
		diff[i] = port[i] - bench[i]
	}
	trackingError = populationStdDev(diff) * math.Sqrt(tradingDaysPerYear)
	if trackingError != 0 {
		informationRatio = mean(diff) * tradingDaysPerYear / trackingError
	}
	return beta, alpha, trackingError, informationRatio
}
