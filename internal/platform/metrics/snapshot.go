package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Sample is one counter or gauge series, named in exposition form:
// ayurfhir_builder_terms_total{result="mapped"}.
type Sample struct {
	Series string
	Value  float64
}

// Snapshot gathers the counter and gauge series under this package's
// namespace, sorted by series name. Histograms are left out.
func Snapshot(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, metric := range mf.GetMetric() {
			var v float64
			switch {
			case metric.GetCounter() != nil:
				v = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				v = metric.GetGauge().GetValue()
			default:
				continue
			}
			var b strings.Builder
			b.WriteString(mf.GetName())
			if len(metric.GetLabel()) > 0 {
				b.WriteByte('{')
				for i, lp := range metric.GetLabel() {
					if i > 0 {
						b.WriteByte(',')
					}
					b.WriteString(lp.GetName())
					b.WriteString(`="`)
					b.WriteString(lp.GetValue())
					b.WriteByte('"')
				}
				b.WriteByte('}')
			}
			out = append(out, Sample{Series: b.String(), Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Series < out[j].Series })
	return out, nil
}

// LogSnapshot writes every sample of g as one info line. Batch commands
// call it on exit since nothing scrapes them.
func LogSnapshot(logger zerolog.Logger, g prometheus.Gatherer) error {
	samples, err := Snapshot(g)
	if err != nil {
		return err
	}
	d := zerolog.Dict()
	for _, s := range samples {
		d = d.Float64(s.Series, s.Value)
	}
	logger.Info().Dict("metrics", d).Msg("run metrics")
	return nil
}
