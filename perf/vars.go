package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	SentPacketPerSecond = metric.NewCounter("10s1s")
	RecvPacketPerSecond = metric.NewCounter("10s1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")
	MessagesDelivered   = metric.NewCounter("1m1s")
	Retransmits         = metric.NewCounter("1m1s")
	RequestsFailed      = metric.NewCounter("1m1s")
	RelayForwarded      = metric.NewCounter("10s1s")
	RelayDropped        = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("dronet:SentPacket/s", SentPacketPerSecond)
	expvar.Publish("dronet:RecvPacket/s", RecvPacketPerSecond)
	expvar.Publish("dronet:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("dronet:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("dronet:MessagesDelivered", MessagesDelivered)
	expvar.Publish("dronet:Retransmits", Retransmits)
	expvar.Publish("dronet:RequestsFailed", RequestsFailed)
	expvar.Publish("dronet:RelayForwarded/s", RelayForwarded)
	expvar.Publish("dronet:RelayDropped/s", RelayDropped)
	expvar.Publish("dronet:DispatchLatency (µs)", DispatchLatency)
}
