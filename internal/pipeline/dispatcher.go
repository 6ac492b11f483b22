package pipeline

import (
	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/metrics"
)

// Dispatcher hands committed reports to the durable history writer.
// The send never blocks: when the writer falls behind, the live
// pipeline keeps going and the row is dropped under a metric.
type Dispatcher struct {
	HistoryChan chan *domain.Report
}

func NewDispatcher(historySize int) *Dispatcher {
	return &Dispatcher{
		HistoryChan: make(chan *domain.Report, historySize),
	}
}

func (d *Dispatcher) Dispatch(rep *domain.Report) {
	select {
	case d.HistoryChan <- rep:
	default:
		metrics.HistoryChannelDrops.Add(1)
	}
}
