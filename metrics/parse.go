// Package metrics has prometheus metrics for message parsing, used by the
// command-line tool and the http server. The core parser does not touch
// these, it stays usable without prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimefeed_messages_total",
			Help: "Messages parsed and results.",
		},
		[]string{
			"result", // ok, error
		},
	)

	metricParseError = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimefeed_parse_errors_total",
			Help: "Structural parse errors by kind.",
		},
		[]string{
			"kind", // truncatedheaders, orphancontinuation, missingboundary, unterminatedmultipart, badcontenttype, other
		},
	)

	metricDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimefeed_decoded_bytes_total",
			Help: "Decoded body bytes by transfer encoding.",
		},
		[]string{
			"encoding", // identity, base64, quoted-printable
		},
	)
)

func MessageInc(result string) {
	metricMessage.WithLabelValues(result).Inc()
}

func ParseErrorInc(kind string) {
	metricParseError.WithLabelValues(kind).Inc()
}

func DecodedAdd(encoding string, n int) {
	metricDecoded.WithLabelValues(encoding).Add(float64(n))
}
