package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelemetry records the numeric fields of a decoded telemetry payload
// for one entity.
//
// Non-numeric fields are skipped: InfluxDB field types are fixed per series,
// and zigbee2mqtt payloads freely mix strings ("ON"), objects (color) and
// numbers. Booleans are mapped to 0/1 so occupancy/contact sensors chart
// cleanly. The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - entity: addressing name of the device or group (friendly name or id)
//   - payload: the decoded telemetry object
//
// Example:
//
//	client.WriteTelemetry("kitchen-lamp", map[string]any{
//	    "brightness": 254.0, "linkquality": 86.0, "state": "ON",
//	})
func (c *Client) WriteTelemetry(entity string, payload map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{})
	for key, value := range payload {
		switch v := value.(type) {
		case float64:
			fields[key] = v
		case bool:
			if v {
				fields[key] = float64(1)
			} else {
				fields[key] = float64(0)
			}
		}
	}

	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{
			"entity": entity,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit WriteTelemetry, such as bridge
// availability transitions.
//
// Example:
//
//	client.WritePoint("bridge_state",
//	    map[string]string{"base_topic": "zigbee2mqtt"},
//	    map[string]interface{}{"online": 1})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
