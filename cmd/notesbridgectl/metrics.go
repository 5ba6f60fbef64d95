package main

import (
	"os"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Dump the process's Prometheus metrics in text exposition format",
	Long: `metrics opens a Bridge and dumps the counters and histograms of
that Bridge's registry. openBridge builds a fresh registry on every
call, so values recorded by other subcommands (search, index build)
are not included; the dump shows the metric definitions and whatever
was recorded while this Bridge was open.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()

		families, err := b.Metrics().Gather()
		if err != nil {
			return err
		}
		enc := expfmt.NewEncoder(os.Stdout, expfmt.FmtText)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return err
			}
		}
		return nil
	},
}
