package bridge

// deriveView computes the presentation view for an entity from its last
// telemetry payload and metadata. The view groups recognised fields into
// accessory-style services (the shape home automation frontends consume),
// leaving everything unrecognised to the raw payload.
//
// The mapping is intentionally lossy: it exists for display, not control.
// Unknown fields are simply absent from the view.
func deriveView(payload map[string]any, meta map[string]any) map[string]any {
	if len(payload) == 0 {
		return nil
	}

	view := make(map[string]any)

	if service := lightbulbService(payload); service != nil {
		view["Lightbulb"] = service
	}
	if temperature, ok := numberField(payload, "temperature"); ok {
		view["TemperatureSensor"] = map[string]any{
			"CurrentTemperature": temperature,
		}
	}
	if humidity, ok := numberField(payload, "humidity"); ok {
		view["HumiditySensor"] = map[string]any{
			"CurrentRelativeHumidity": humidity,
		}
	}
	if occupancy, ok := payload["occupancy"].(bool); ok {
		view["MotionSensor"] = map[string]any{
			"MotionDetected": occupancy,
		}
	}
	if contact, ok := payload["contact"].(bool); ok {
		// Contact sensors report true while closed; the view exposes the
		// open state.
		view["ContactSensor"] = map[string]any{
			"ContactOpen": !contact,
		}
	}
	if leak, ok := payload["water_leak"].(bool); ok {
		view["LeakSensor"] = map[string]any{
			"LeakDetected": leak,
		}
	}
	if smoke, ok := payload["smoke"].(bool); ok {
		view["SmokeSensor"] = map[string]any{
			"SmokeDetected": smoke,
		}
	}
	if battery, ok := numberField(payload, "battery"); ok {
		view["Battery"] = map[string]any{
			"BatteryLevel":     battery,
			"StatusLowBattery": battery < lowBatteryThreshold,
		}
	}
	if quality, ok := numberField(payload, "linkquality"); ok {
		view["LinkQuality"] = quality
	}

	if len(view) == 0 {
		return nil
	}

	// Attach the model when metadata carries one; frontends use it to pick
	// an icon.
	if meta != nil {
		if model, ok := meta["model"].(string); ok && model != "" {
			view["Model"] = model
		}
	}

	return view
}

// lowBatteryThreshold is the battery percentage below which the view flags
// a low-battery status.
const lowBatteryThreshold = 20

// maxBrightness is the zigbee brightness scale ceiling; views expose 0-100.
const maxBrightness = 254

// lightbulbService builds the Lightbulb section of a view from on/off state,
// brightness, and colour temperature fields, or returns nil when none apply.
func lightbulbService(payload map[string]any) map[string]any {
	state, hasState := payload["state"].(string)
	brightness, hasBrightness := numberField(payload, "brightness")
	colorTemp, hasColorTemp := numberField(payload, "color_temp")

	if !hasState && !hasBrightness && !hasColorTemp {
		return nil
	}

	service := make(map[string]any)
	if hasState {
		service["On"] = state == "ON"
	}
	if hasBrightness {
		percent := brightness / maxBrightness * 100
		if percent > 100 {
			percent = 100
		}
		service["Brightness"] = percent
	}
	if hasColorTemp {
		service["ColorTemperature"] = colorTemp
	}
	return service
}

// numberField extracts a numeric field from a decoded JSON object.
func numberField(payload map[string]any, key string) (float64, bool) {
	n, ok := payload[key].(float64)
	return n, ok
}
