package realtime

import (
	"context"
	"time"

	"github.com/mbd888/fraudscope/internal/animate"
	"github.com/mbd888/fraudscope/internal/catalog"
)

// StatFrame is the payload of a stat event.
type StatFrame struct {
	Label string `json:"label"`
	animate.Frame
}

// StatsGreeting counts each headline statistic up from zero on a new
// client. Figures that do not parse are sent once as is.
func StatsGreeting(stats []catalog.Stat) Greeting {
	return statsGreeting(stats, animate.Interval)
}

func statsGreeting(stats []catalog.Stat, interval func(int) time.Duration) Greeting {
	return func(ctx context.Context, emit func(*Event)) {
		counters := make([]*animate.Counter, 0, len(stats))
		labels := make([]string, 0, len(stats))
		for _, s := range stats {
			target, kind, err := animate.ParseStat(s.Display)
			if err != nil {
				emit(&Event{Type: EventStat, Timestamp: time.Now().UTC(), Data: StatFrame{
					Label: s.Label,
					Frame: animate.Frame{Index: -1, Text: s.Display, Done: true},
				}})
				continue
			}
			counters = append(counters, animate.NewCounter(target, kind))
			labels = append(labels, s.Label)
		}

		animate.RunEvery(ctx, counters, interval, func(f animate.Frame) {
			emit(&Event{
				Type:      EventStat,
				Timestamp: time.Now().UTC(),
				Data:      StatFrame{Label: labels[f.Index], Frame: f},
			})
		})
	}
}
