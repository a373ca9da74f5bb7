package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ssamtools/go-ssam-server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"serial_tx", snap.SerialTx,
					"serial_tx_bytes", snap.SerialTxBytes,
					"serial_rx_bytes", snap.SerialRxBytes,
					"tcp_rx", snap.TCPRx,
					"tcp_tx", snap.TCPTx,
					"encode_fail", snap.EncodeFail,
					"hub_drops", snap.HubDrops,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
