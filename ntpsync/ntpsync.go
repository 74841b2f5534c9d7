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

// Package ntpsync estimates the offset of the local clock against NTP servers.
package ntpsync

import (
	"math"
	"sort"
	"time"

	"github.com/beevik/ntp"

	"github.com/CovenantSQL/explog/utils/log"
	"github.com/CovenantSQL/explog/utils/timer"
)

const (
	// DefaultQueries is the number of requests sent to each server.
	DefaultQueries = 3
	// DefaultQueryInterval is the pause between two requests to the same server.
	DefaultQueryInterval = 50 * time.Millisecond
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 2 * time.Second
)

// DefaultServers are the public pool servers used when none are configured.
var DefaultServers = []string{"1.pool.ntp.org", "2.pool.ntp.org", "3.pool.ntp.org"}

// Querier returns the offset of the local clock against server.
type Querier interface {
	Offset(server string) (time.Duration, error)
}

// NTPQuerier queries servers with NTP version 3.
type NTPQuerier struct {
	Timeout time.Duration
}

// Offset implements Querier.
func (q *NTPQuerier) Offset(server string) (offset time.Duration, err error) {
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var resp *ntp.Response
	if resp, err = ntp.QueryWithOptions(server, ntp.QueryOptions{Version: 3, Timeout: timeout}); err != nil {
		return
	}
	if err = resp.Validate(); err != nil {
		return
	}
	return resp.ClockOffset, nil
}

// Config controls a synchronization pass. A negative Interval disables the pause between requests.
type Config struct {
	Servers  []string
	Queries  int
	Interval time.Duration
	Querier  Querier
}

// Sync queries every server and returns the median of all offsets collected. A server that fails
// is skipped. Without any sample the offset is zero.
func Sync(cfg Config) (offset time.Duration) {
	if len(cfg.Servers) == 0 {
		cfg.Servers = DefaultServers
	}
	if cfg.Queries <= 0 {
		cfg.Queries = DefaultQueries
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultQueryInterval
	}
	if cfg.Querier == nil {
		cfg.Querier = &NTPQuerier{}
	}

	var (
		offsets []time.Duration
		tm      = timer.NewTimer()
	)
	for _, server := range cfg.Servers {
		log.WithField("server", server).Debug("synchronising to ntp server")
		for i := 0; i < cfg.Queries; i++ {
			o, err := cfg.Querier.Offset(server)
			if err != nil {
				log.WithError(err).WithField("server", server).Debug("ntp request failed")
				break
			}
			offsets = append(offsets, o)
			if i < cfg.Queries-1 && cfg.Interval > 0 {
				time.Sleep(cfg.Interval)
			}
		}
		tm.Add(server)
	}

	if len(offsets) == 0 {
		log.WithFields(tm.ToLogFields()).Warning("no ntp samples, proceeding without synchronisation")
		return 0
	}

	offset = Median(offsets)
	log.WithFields(tm.ToLogFields()).WithFields(log.Fields{
		"samples": len(offsets),
		"median":  offset,
		"mean":    Mean(offsets),
		"stddev":  StdDev(offsets),
	}).Debug("ntp time offset")
	return
}

// Median returns the upper median of ds.
func Median(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// Mean returns the arithmetic mean of ds.
func Mean(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum float64
	for _, d := range ds {
		sum += float64(d)
	}
	return time.Duration(sum / float64(len(ds)))
}

// StdDev returns the population standard deviation of ds.
func StdDev(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	mean := float64(Mean(ds))
	var sum float64
	for _, d := range ds {
		sum += (float64(d) - mean) * (float64(d) - mean)
	}
	return time.Duration(math.Sqrt(sum / float64(len(ds))))
}

// Clock is the wall clock shifted by a fixed offset.
type Clock struct {
	offset time.Duration
	now    func() time.Time
}

// NewClock returns a clock reading the wall clock plus offset.
func NewClock(offset time.Duration) *Clock {
	return &Clock{offset: offset, now: time.Now}
}

// Now returns the corrected time.
func (c *Clock) Now() time.Time {
	return c.now().Add(c.offset)
}

// Offset returns the fixed correction.
func (c *Clock) Offset() time.Duration {
	return c.offset
}
