package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"robot-telemetry/pkg/dashboard"
	"robot-telemetry/pkg/model"
)

const (
	clearScreen = "\033[H\033[2J"
	sparkWidth  = 40
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// terminal draws one full frame per snapshot.
type terminal struct {
	out   io.Writer
	clear bool
}

func (t *terminal) Render(s dashboard.Snapshot) {
	var b strings.Builder
	if t.clear {
		b.WriteString(clearScreen)
	}
	fmt.Fprintf(&b, "Robot %s  [%s]", s.RobotID, strings.ToUpper(s.State.String()))
	if s.State == dashboard.Polling && s.Reconnects > 0 {
		fmt.Fprintf(&b, "  reconnect attempt %d", s.Reconnects)
	}
	b.WriteString("\n\n")

	if s.Latest != nil {
		l := s.Latest
		fmt.Fprintf(&b, "Temperature %6.1f°C   Battery %3d%%   Motor %5d rpm   Status %s\n\n",
			l.Temperature, l.Battery, l.MotorRPM, l.Status)
	} else {
		b.WriteString("Waiting for telemetry...\n\n")
	}

	if n := len(s.Temperature); n > 0 {
		temps := make([]float64, n)
		copy(temps, s.Temperature)
		batt := make([]float64, n)
		rpm := make([]float64, n)
		for i := range s.Battery {
			batt[i] = float64(s.Battery[i])
			rpm[i] = float64(s.MotorRPM[i])
		}
		fmt.Fprintf(&b, "temp    %s\n", spark(temps))
		fmt.Fprintf(&b, "battery %s\n", spark(batt))
		fmt.Fprintf(&b, "rpm     %s\n", spark(rpm))
		fmt.Fprintf(&b, "        %s .. %s\n\n", s.Labels[0], s.Labels[n-1])
	}

	if len(s.Rows) > 0 {
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tTEMP\tBATTERY\tRPM\tSTATUS")
		for _, r := range s.Rows {
			fmt.Fprintf(tw, "%s\t%.1f\t%d%%\t%d\t%s\n", r.Timestamp.Local().Format("15:04:05"), r.Temperature, r.Battery, r.MotorRPM, r.Status)
		}
		_ = tw.Flush()
		b.WriteString("\n")
	}

	for i, a := range s.Alerts {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "%s %-8s %s\n", a.Timestamp.Local().Format("15:04:05"), strings.ToUpper(string(a.Severity)), a.Message)
	}
	if s.Feedback != nil {
		mark := "✗"
		if s.Feedback.Success {
			mark = "✓"
		}
		fmt.Fprintf(&b, "\n%s %s\n", mark, s.Feedback.Message)
	}
	fmt.Fprintf(&b, "\ncommands: %s | quit\n", strings.Join(commandNames(), " | "))
	_, _ = io.WriteString(t.out, b.String())
}

func commandNames() []string {
	names := make([]string, len(model.ValidCommands))
	for i, c := range model.ValidCommands {
		names[i] = string(c)
	}
	return names
}

// spark renders the newest sparkWidth values scaled to their own range.
func spark(vals []float64) string {
	if len(vals) > sparkWidth {
		vals = vals[len(vals)-sparkWidth:]
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	out := make([]rune, len(vals))
	for i, v := range vals {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}
