// Package report renders a run's equity curve and drawdown series into a
// standalone HTML page.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"replay/internal/analytics"
	"replay/internal/portfolio"
)

// Input is everything the report needs from a finished run.
type Input struct {
	RunID    string
	Strategy string
	Metrics  analytics.Metrics
	Snapshot portfolio.Snapshot
}

// Render writes the HTML report to w.
func Render(w io.Writer, in Input) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Backtest %s", in.RunID)
	page.AddCharts(equityChart(in), drawdownChart(in))
	return page.Render(w)
}

// RenderFile writes the HTML report to path, creating parent directories.
func RenderFile(path string, in Input) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Render(f, in)
}

func equityChart(in Input) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Equity — %s", in.Strategy),
			Subtitle: fmt.Sprintf("return %.2f%%  sharpe %.2f  max drawdown %.2f%%",
				in.Metrics.TotalReturn*100, in.Metrics.SharpeRatio, in.Metrics.MaxDrawdown*100),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	xAxis := make([]string, len(in.Snapshot.EquityCurve))
	data := make([]opts.LineData, len(in.Snapshot.EquityCurve))
	for i, pt := range in.Snapshot.EquityCurve {
		xAxis[i] = pt.Timestamp.Format("2006-01-02")
		data[i] = opts.LineData{Value: pt.Value}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Portfolio Value", data)
	return line
}

func drawdownChart(in Input) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "260px"}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}),
	)

	xAxis := make([]string, len(in.Snapshot.Drawdowns))
	data := make([]opts.LineData, len(in.Snapshot.Drawdowns))
	for i, pt := range in.Snapshot.Drawdowns {
		xAxis[i] = pt.Timestamp.Format("2006-01-02")
		data[i] = opts.LineData{Value: -pt.Drawdown * 100}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Drawdown %", data)
	return line
}
