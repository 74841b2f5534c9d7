/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metric

import (
	"context"
	"expvar"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mw "github.com/zserge/metric"

	"github.com/CovenantSQL/explog/utils/log"
)

var publishLock sync.Mutex

// exposed returns the expvar metric published under name, publishing a new one from newFn
// on first use. expvar names are process global.
func exposed(name string, newFn func() mw.Metric) mw.Metric {
	if v := expvar.Get(name); v != nil {
		return v.(mw.Metric)
	}
	publishLock.Lock()
	defer publishLock.Unlock()
	if v := expvar.Get(name); v == nil {
		expvar.Publish(name, newFn())
	}
	return expvar.Get(name).(mw.Metric)
}

func newGauge() mw.Metric {
	return mw.NewGauge("1m1s", "5m5s", "1h1m")
}

func collect(g prometheus.Gatherer) (err error) {
	mm, err := Gather(g)
	if err != nil {
		return
	}
	for k, v := range mm.FilterCrucialMetrics() {
		exposed(k, newGauge).Add(v)
	}
	return
}

func collectRuntime() {
	m := &runtime.MemStats{}
	runtime.ReadMemStats(m)
	exposed("go:numgoroutine", newGauge).Add(float64(runtime.NumGoroutine()))
	exposed("go:numcgocall", newGauge).Add(float64(runtime.NumCgoCall()))
	exposed("go:alloc", newGauge).Add(float64(m.Alloc) / float64(MB))
	exposed("go:alloctotal", newGauge).Add(float64(m.TotalAlloc) / float64(MB))
}

// MetricWeb serves /debug/metrics (expvar gauges) and /metrics (prometheus).
type MetricWeb struct {
	Addr string

	server *http.Server
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// InitMetricWeb starts the metric web on metricWeb, sampling g every interval.
func InitMetricWeb(metricWeb string, g prometheus.Gatherer, interval time.Duration) (w *MetricWeb, err error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if err = collect(g); err != nil {
		return
	}
	collectRuntime()

	l, err := net.Listen("tcp", metricWeb)
	if err != nil {
		err = errors.Wrapf(err, "listen metric web on %s failed", metricWeb)
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/debug/metrics", mw.Handler(mw.Exposed))
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	w = &MetricWeb{
		Addr:   l.Addr().String(),
		server: &http.Server{Handler: mux},
		stopCh: make(chan struct{}),
	}

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				if err := collect(g); err != nil {
					log.WithError(err).Warning("collect metrics failed")
				}
				collectRuntime()
			}
		}
	}()
	go func() {
		defer w.wg.Done()
		if err := w.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metric web stopped")
		}
	}()
	log.WithField("addr", w.Addr).Info("metric web started")
	return
}

// Stop shuts the metric web down.
func (w *MetricWeb) Stop() {
	close(w.stopCh)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = w.server.Shutdown(ctx)
	w.wg.Wait()
}
