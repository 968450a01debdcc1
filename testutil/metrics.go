/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram asserts that the histogram observed wantSamplesCount values.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	markHelper(t)
	m := gatherSingle(t, hist)
	require.NotNil(t, m.GetHistogram())
	require.Equal(t, wantSamplesCount, int(m.GetHistogram().GetSampleCount()))
}

// RequireSamplesCountInCounter asserts that the counter's value is wantCount.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Counter, wantCount int) {
	markHelper(t)
	m := gatherSingle(t, counter)
	require.NotNil(t, m.GetCounter())
	require.Equal(t, wantCount, int(m.GetCounter().GetValue()))
}

func gatherSingle(t require.TestingT, c prometheus.Collector) *dto.Metric {
	markHelper(t)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 1)
	return families[0].GetMetric()[0]
}
