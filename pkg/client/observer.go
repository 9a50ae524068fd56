package client

import (
	"github.com/X-rus/xnet/pkg/timing"
)

// Progress reports transferred bytes. Total is -1 when unknown.
type Progress struct {
	Method string
	URL    string
	Bytes  int64
	Total  int64
}

// Completion summarizes one request/response exchange. It is reported once
// the response body has been consumed, discarded or abandoned, or when the
// exchange failed before a response arrived.
type Completion struct {
	Method        string
	URL           string
	Host          string
	StatusCode    int
	BytesSent     int64
	BytesReceived int64
	Reused        bool
	Retried       bool
	Timings       timing.Metrics
	Err           error
}

// Observer receives transfer notifications. Methods are called synchronously
// on the goroutine driving the request and must not block.
type Observer interface {
	OnUpload(Progress)
	OnDownload(Progress)
	OnComplete(Completion)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnUpload(Progress)     {}
func (NopObserver) OnDownload(Progress)   {}
func (NopObserver) OnComplete(Completion) {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (obs Observers) OnUpload(p Progress) {
	for _, o := range obs {
		o.OnUpload(p)
	}
}

func (obs Observers) OnDownload(p Progress) {
	for _, o := range obs {
		o.OnDownload(p)
	}
}

func (obs Observers) OnComplete(c Completion) {
	for _, o := range obs {
		o.OnComplete(c)
	}
}
