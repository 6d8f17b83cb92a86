// Command coredash serves a live dashboard of session counters next
// to the go-echarts/statsview runtime viewer, the kind of diagnostic
// tool a maintainer reaches for while exercising the core against the
// fake target rather than a real probe. It is not the RSP server:
// §1 places the wire protocol and its transport out of scope.
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/rs/cors"

	"github.com/felias-fogg/PyAvrOCD/core"
	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/policy"
	"github.com/felias-fogg/PyAvrOCD/internal/sessionstats"
	"github.com/felias-fogg/PyAvrOCD/internal/target"
	"github.com/felias-fogg/PyAvrOCD/internal/target/faketarget"
)

const pollInterval = 500 * time.Millisecond

func main() {
	tgt := faketarget.New(
		faketarget.MemoryState{PageSize: 128, FlashSize: 32 * 1024, SRAMBase: 0x0100, SRAMSize: 2048},
		target.DeviceInfo{Architecture: "avr8"},
	)
	c, err := core.New(tgt, 4, policy.Policy{SafeStepping: true, RangeStepping: true})
	if err != nil {
		panic(err)
	}

	// A bit of synthetic activity so the dashboard has something to
	// show immediately instead of a flat line.
	go synthesizeActivity(c)

	poller := sessionstats.NewPoller(c, 120)
	stop := make(chan struct{})
	go poller.Run(pollInterval, stop)

	viewer.SetConfiguration(viewer.WithAddr("0.0.0.0:18066"))
	mgr := statsview.New()
	go mgr.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/sessionstats", func(w http.ResponseWriter, r *http.Request) {
		renderCountersChart(w, poller.Samples())
	})

	handler := cors.Default().Handler(mux)
	fmt.Println("coredash: runtime viewer at http://localhost:18066/debug/statsview")
	fmt.Println("coredash: session counters at http://localhost:18067/sessionstats")
	if err := http.ListenAndServe("0.0.0.0:18067", handler); err != nil {
		panic(err)
	}
}

// synthesizeActivity drives a handful of breakpoints and steps
// against the fake target so sessionstats has non-zero counters to
// chart without a real GDB client attached.
func synthesizeActivity(c *core.Core) {
	addrs := []avr.Addr{0x0100, 0x0200, 0x0300, 0x0400}
	for i := 0; ; i++ {
		a := addrs[i%len(addrs)]
		c.InsertBreakpoint(a)
		c.ResumeExecution(nil)
		c.SingleStep(nil)
		if i%len(addrs) == len(addrs)-1 {
			c.CleanupBreakpoints()
		}
		time.Sleep(300 * time.Millisecond)
	}
}

func renderCountersChart(w http.ResponseWriter, samples []sessionstats.Counters) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "breakpoint/step session counters"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample"}),
	)

	x := make([]string, len(samples))
	commits := make([]opts.LineData, len(samples))
	steps := make([]opts.LineData, len(samples))
	hwFree := make([]opts.LineData, len(samples))
	for i, s := range samples {
		x[i] = fmt.Sprintf("%d", i)
		commits[i] = opts.LineData{Value: s.Commits}
		steps[i] = opts.LineData{Value: s.StepsExecuted}
		hwFree[i] = opts.LineData{Value: s.HWBPFree}
	}

	line.SetXAxis(x).
		AddSeries("commits", commits).
		AddSeries("steps executed", steps).
		AddSeries("HWBP slots free", hwFree)

	line.Render(w)
}
