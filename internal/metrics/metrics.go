package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Observer counts channel traffic.  It implements framed.Observer.
type Observer struct {
	messages *prometheus.CounterVec
	fields   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
}

// NewObserver creates the counters and registers them with reg.  It panics if
// they are already registered.
func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "framed",
				Subsystem: "channel",
				Name:      "messages_total",
				Help:      "Messages sent or received.",
			},
			[]string{"direction"},
		),
		fields: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "framed",
				Subsystem: "channel",
				Name:      "fields_total",
				Help:      "Fields carried by sent or received messages.",
			},
			[]string{"direction"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "framed",
				Subsystem: "channel",
				Name:      "bytes_total",
				Help:      "Wire bytes of sent or received messages, terminators included.",
			},
			[]string{"direction"},
		),
	}
	reg.MustRegister(o.messages, o.fields, o.bytes)
	return o
}

func (o *Observer) MessageSent(fields, bytes int) {
	o.record("sent", fields, bytes)
}

func (o *Observer) MessageReceived(fields, bytes int) {
	o.record("received", fields, bytes)
}

func (o *Observer) record(direction string, fields, bytes int) {
	o.messages.WithLabelValues(direction).Inc()
	o.fields.WithLabelValues(direction).Add(float64(fields))
	o.bytes.WithLabelValues(direction).Add(float64(bytes))
}
