package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBotMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBotMetrics(reg)

	m.ObserveUpdate("callback", "ok")
	m.ObserveBooking("booked")
	m.ObserveSheetsCall("try_book", 0.12, nil)
	m.ObserveSheetsCall("append_record", 0.5, errors.New("boom"))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["periopbot_dialog_updates_total"])
	assert.True(t, names["periopbot_dialog_bookings_total"])
	assert.True(t, names["periopbot_sheets_call_latency_seconds"])
	assert.True(t, names["periopbot_sheets_call_errors_total"])
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *BotMetrics
	m.ObserveUpdate("text", "ok")
	m.ObserveBooking("conflict")
	m.ObserveSheetsCall("list_open_slots", 0.01, nil)
}
