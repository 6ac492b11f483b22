package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	ReportsReceived     atomic.Int64
	ReportsRejected     atomic.Int64
	AppendConflicts     atomic.Int64
	AppendsDropped      atomic.Int64
	BroadcastsSent      atomic.Int64
	ObserversDropped    atomic.Int64
	SnapshotsCaptured   atomic.Int64
	HistoryRowsWritten  atomic.Int64
	HistoryChannelDrops atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "tracker_reports_received_total %d\n", ReportsReceived.Load())
	fmt.Fprintf(w, "tracker_reports_rejected_total %d\n", ReportsRejected.Load())
	fmt.Fprintf(w, "tracker_append_conflicts_total %d\n", AppendConflicts.Load())
	fmt.Fprintf(w, "tracker_appends_dropped_total %d\n", AppendsDropped.Load())
	fmt.Fprintf(w, "tracker_broadcasts_sent_total %d\n", BroadcastsSent.Load())
	fmt.Fprintf(w, "tracker_observers_dropped_total %d\n", ObserversDropped.Load())
	fmt.Fprintf(w, "tracker_snapshots_captured_total %d\n", SnapshotsCaptured.Load())
	fmt.Fprintf(w, "tracker_history_rows_written_total %d\n", HistoryRowsWritten.Load())
	fmt.Fprintf(w, "tracker_history_channel_drops_total %d\n", HistoryChannelDrops.Load())
}
