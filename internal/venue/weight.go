package venue

import (
	"net/http"
	"strconv"

	"arbflow/internal/metrics"
	"arbflow/logger"
)

// reportUsedWeight inspects Binance used-weight headers and publishes the
// first numeric value it finds as a gauge. Binance TH mirrors the global
// header scheme, so both REST venues can report quota headroom the same way.
func reportUsedWeight(log *logger.Log, venue string, resp *http.Response) (float64, bool) {
	if log == nil || resp == nil {
		return 0, false
	}

	headers := []struct {
		key    string
		window string
	}{
		{"X-MBX-USED-WEIGHT-1M", "1m"},
		{"X-MBX-USED-WEIGHT", "1m"},
		{"X-MBX-USED-WEIGHT-1S", "1s"},
	}

	for _, h := range headers {
		value := resp.Header.Get(h.key)
		if value == "" {
			continue
		}

		used, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.WithComponent(venue).WithFields(logger.Fields{
				"header": h.key,
				"value":  value,
			}).WithError(err).Debug("failed to parse used weight header")
			continue
		}

		metrics.SetUsedWeight(venue, h.window, used)
		log.WithComponent(venue).WithFields(logger.Fields{
			"window":      h.window,
			"used_weight": used,
		}).Debug("venue used weight")
		return used, true
	}

	return 0, false
}
