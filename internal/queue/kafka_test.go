package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/protocol"
)

func TestAnomalyMessages_KeyedByVehicle(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	var notes []*protocol.AnomalyNotification
	for _, v := range []string{"veh-1", "veh-2"} {
		rec := model.AnomalyRecord{
			OriginalSample:  model.Row{VehicleID: v, Timestamp: now, Values: []float64{1}},
			ConfidenceScore: 3.5,
			AnomalyType:     "idle_time",
		}
		notes = append(notes, protocol.NewAnomalyNotification(rec, []string{"idle_time"}, 3, protocol.SourceRollup, now))
	}

	msgs, err := AnomalyMessages(notes)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "veh-1", string(msgs[0].Key))
	assert.Equal(t, "veh-2", string(msgs[1].Key))

	parsed, err := protocol.ParseMessage(msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, "veh-2", parsed.(*protocol.AnomalyNotification).VehicleID)
}
