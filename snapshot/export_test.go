package snapshot

import "github.com/prometheus/client_golang/prometheus"

func LoadsCounter(result string) prometheus.Counter {
	return loadsTotal.WithLabelValues(result)
}
