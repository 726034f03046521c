// Copyright (c) 2024 Big Cove Technologies Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package update

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nzd_updates_total",
		Help: "Firmware updates by outcome.",
	}, []string{"outcome"})

	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nzd_update_duration_seconds",
		Help:    "Duration of firmware update attempts.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

func observeUpdate(outcome string, elapsed time.Duration) {
	updatesTotal.WithLabelValues(outcome).Inc()
	updateDuration.Observe(elapsed.Seconds())
}
