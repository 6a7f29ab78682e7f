package cli

import (
	"github.com/dustin/go-humanize"

	"github.com/glorpus-work/ofclient/internal/logger"
	"github.com/glorpus-work/ofclient/pkg/model"
)

// logSummary logs the final tally of every pair an operation touched.
func logSummary(op string, results map[model.Pair]model.SizeTally) {
	for pair, tally := range results {
		logger.Info("Cache summary", logger.Fields{
			"operation": op,
			"cache":     pair.String(),
			"intact":    humanize.IBytes(uint64(max(tally.Intact, 0))),
			"altered":   humanize.IBytes(uint64(max(tally.Altered, 0))),
			"missing":   humanize.IBytes(uint64(tally.Missing())),
			"total":     humanize.IBytes(uint64(max(tally.Total, 0))),
		})
	}
}
