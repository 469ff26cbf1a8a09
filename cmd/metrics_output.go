package cmd

import (
	"fmt"
	"io"

	model "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// writeMetricFamilies writes gathered counters in the prometheus text exposition format.
func writeMetricFamilies(out io.Writer, families []*model.MetricFamily) error {
	fmt.Fprintln(out, "=== Prometheus Metrics ===")
	for _, f := range families {
		if _, err := expfmt.MetricFamilyToText(out, f); err != nil {
			return fmt.Errorf("encoding metric %s: %w", f.GetName(), err)
		}
	}
	return nil
}
