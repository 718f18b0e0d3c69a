package sensors

import "fmt"

// Sensor names, used as identifiers in the API.
const (
	Switch      = "switch"
	Temperature = "temperature"
	Water       = "water"
	Power       = "power"
)

// Topics are fixed per sensor type and never derived from the location or
// tank fields, so every instance of a type shares one topic.
const (
	SwitchTopic      = "switch/state"
	TemperatureTopic = "sensors/temperature"
	WaterTopic       = "sensors/waterlevel"
	PowerTopic       = "sensors/power"
)

// Dropdown option lists.
var (
	TemperatureLocations = []interface{}{
		"Living Room", "Kitchen", "Bedroom", "Bathroom",
		"Garage", "Basement", "Attic", "Outdoor",
	}
	TankLocations = []interface{}{
		"Main Tank", "Backup Tank", "Storage Tank", "Emergency Tank", "Roof Tank",
	}
	TankCapacities = []interface{}{500, 750, 1000, 1500, 2000, 2500, 3000, 5000}
	WaterStatuses  = []interface{}{"normal", "low", "critical", "full", "overflow"}
)

// SwitchSchema is the main device switch. It has no enabled flag and
// publishes whenever the transport is connected.
func SwitchSchema() *Schema {
	return &Schema{
		Name:  Switch,
		Title: "Main Switch",
		Topic: SwitchTopic,
		Gated: false,
		Fields: []Field{
			{Name: "state", Kind: KindBool, Default: false},
			{Name: "device", Kind: KindString, Default: "main-switch", Constant: true},
		},
	}
}

// TemperatureSchema is the simulated DHT22 temperature/humidity sensor.
func TemperatureSchema() *Schema {
	return &Schema{
		Name:  Temperature,
		Title: "Temperature Sensor",
		Topic: TemperatureTopic,
		Gated: true,
		Fields: []Field{
			{Name: "temperature", Kind: KindFloat, Default: 25.0, Range: &Range{Min: -10, Max: 45}, Step: 0.1, Unit: "°C"},
			{Name: "humidity", Kind: KindFloat, Default: 60.0, Range: &Range{Min: 0, Max: 100}, Step: 0.1, Unit: "%"},
			{Name: "sensor", Kind: KindString, Default: "DHT22", Constant: true},
			{Name: "location", Kind: KindString, Default: "Living Room", Options: TemperatureLocations},
			{Name: EnabledField, Kind: KindBool, Default: true},
		},
	}
}

// WaterSchema is the simulated ultrasonic tank level sensor.
func WaterSchema() *Schema {
	return &Schema{
		Name:  Water,
		Title: "Water Level Sensor",
		Topic: WaterTopic,
		Gated: true,
		Fields: []Field{
			{Name: "level", Kind: KindInt, Default: 75, Range: &Range{Min: 0, Max: 100}, Step: 1, Unit: "%"},
			{Name: "capacity", Kind: KindInt, Default: 1000, Options: TankCapacities, Unit: "L"},
			{Name: "status", Kind: KindString, Default: "normal", Options: WaterStatuses},
			{Name: "sensor", Kind: KindString, Default: "Ultrasonic", Constant: true},
			{Name: "location", Kind: KindString, Default: "Main Tank", Options: TankLocations},
			{Name: EnabledField, Kind: KindBool, Default: true},
			{Name: "alertsEnabled", Kind: KindBool, Default: true},
		},
	}
}

// PowerSchema is the simulated single-phase power meter.
func PowerSchema() *Schema {
	return &Schema{
		Name:  Power,
		Title: "Power Sensor",
		Topic: PowerTopic,
		Gated: true,
		Fields: []Field{
			{Name: "voltage", Kind: KindFloat, Default: 220.0, Range: &Range{Min: 100, Max: 300}, Step: 0.1, Unit: "V"},
			{Name: "current", Kind: KindFloat, Default: 5.5, Range: &Range{Min: 0, Max: 50}, Step: 0.01, Unit: "A"},
			{Name: "power", Kind: KindFloat, Default: 1210.0, Range: &Range{Min: 0, Max: 10000}, Step: 1, Unit: "W"},
			{Name: "frequency", Kind: KindFloat, Default: 50.0, Range: &Range{Min: 45, Max: 65}, Step: 0.01, Unit: "Hz"},
			{Name: "powerFactor", Kind: KindFloat, Default: 0.95, Range: &Range{Min: 0, Max: 1}, Step: 0.001},
			{Name: "sensor", Kind: KindString, Default: "Power Meter", Constant: true},
			{Name: "phase", Kind: KindString, Default: "Single", Constant: true},
			{Name: EnabledField, Kind: KindBool, Default: true},
			{Name: "monitoring", Kind: KindBool, Default: true},
		},
	}
}

// AllSchemas returns fresh copies of the four sensor schemas in panel order.
func AllSchemas() []*Schema {
	all := []*Schema{SwitchSchema(), TemperatureSchema(), WaterSchema(), PowerSchema()}
	for _, s := range all {
		if err := s.validate(); err != nil {
			panic(fmt.Sprintf("sensors: invalid built-in schema: %v", err))
		}
	}
	return all
}
