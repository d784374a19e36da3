package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a prometheus.Collector that reads the registry and counters
// at scrape time.
type Collector struct {
	state    StateProvider
	counters *Counters

	participantsDesc *prometheus.Desc
	roomsDesc        *prometheus.Desc
	datagramsInDesc  *prometheus.Desc
	forwardedDesc    *prometheus.Desc
	droppedDesc      *prometheus.Desc
	bytesDesc        *prometheus.Desc
	textDesc         *prometheus.Desc
	joinsDesc        *prometheus.Desc
	leavesDesc       *prometheus.Desc
}

// NewCollector creates a collector over the given providers.
func NewCollector(state StateProvider, counters *Counters) *Collector {
	return &Collector{
		state:    state,
		counters: counters,

		participantsDesc: prometheus.NewDesc(
			"golos_participants",
			"Number of currently joined participants",
			nil, nil,
		),
		roomsDesc: prometheus.NewDesc(
			"golos_rooms",
			"Number of rooms with at least one participant",
			nil, nil,
		),
		datagramsInDesc: prometheus.NewDesc(
			"golos_media_datagrams_received_total",
			"Total media datagrams read from the UDP socket",
			nil, nil,
		),
		forwardedDesc: prometheus.NewDesc(
			"golos_media_datagrams_forwarded_total",
			"Total per-peer media datagram sends",
			nil, nil,
		),
		droppedDesc: prometheus.NewDesc(
			"golos_media_datagrams_dropped_total",
			"Total media datagrams dropped before fan-out",
			nil, nil,
		),
		bytesDesc: prometheus.NewDesc(
			"golos_media_bytes_forwarded_total",
			"Total media payload bytes sent to peers",
			nil, nil,
		),
		textDesc: prometheus.NewDesc(
			"golos_text_messages_total",
			"Total chat messages fanned out",
			nil, nil,
		),
		joinsDesc: prometheus.NewDesc(
			"golos_joins_total",
			"Total successful joins",
			nil, nil,
		),
		leavesDesc: prometheus.NewDesc(
			"golos_leaves_total",
			"Total departures, explicit or by disconnect",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.participantsDesc
	ch <- c.roomsDesc
	ch <- c.datagramsInDesc
	ch <- c.forwardedDesc
	ch <- c.droppedDesc
	ch <- c.bytesDesc
	ch <- c.textDesc
	ch <- c.joinsDesc
	ch <- c.leavesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.participantsDesc, prometheus.GaugeValue,
		float64(c.state.ParticipantCount()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.roomsDesc, prometheus.GaugeValue,
		float64(c.state.RoomCount()),
	)

	snap := c.counters.Snapshot()
	ch <- prometheus.MustNewConstMetric(
		c.datagramsInDesc, prometheus.CounterValue, float64(snap.DatagramsIn))
	ch <- prometheus.MustNewConstMetric(
		c.forwardedDesc, prometheus.CounterValue, float64(snap.DatagramsForwarded))
	ch <- prometheus.MustNewConstMetric(
		c.droppedDesc, prometheus.CounterValue, float64(snap.DatagramsDropped))
	ch <- prometheus.MustNewConstMetric(
		c.bytesDesc, prometheus.CounterValue, float64(snap.BytesForwarded))
	ch <- prometheus.MustNewConstMetric(
		c.textDesc, prometheus.CounterValue, float64(snap.TextMessages))
	ch <- prometheus.MustNewConstMetric(
		c.joinsDesc, prometheus.CounterValue, float64(snap.Joins))
	ch <- prometheus.MustNewConstMetric(
		c.leavesDesc, prometheus.CounterValue, float64(snap.Leaves))
}
