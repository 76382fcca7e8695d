package omnik

// Status reports whether the inverter was producing when queried. It is
// derived from the temperature reading, not transmitted verbatim.
type Status string

const (
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
)

// Data is the decoded snapshot of one query cycle. Optional fields are nil
// when the response carried no usable reading for them; a genuine zero and
// "no reading" are never conflated.
type Data struct {
	SerialNumber      *string
	Status            Status
	Temperature       *float64 // °C
	ActualPower       int      // W, forced to 0 while offline
	EnergyToday       *float64 // kWh
	EnergyTotal       *float64 // kWh
	HoursTotal        *int     // lifetime operating hours
	DCInputVoltage    *float64 // V
	DCInputCurrent    *float64 // A
	ACOutputVoltage   *float64 // V
	ACOutputCurrent   *float64 // A
	ACOutputFrequency *float64 // Hz
	ACOutputPower     *int     // W
}

// Online reports whether the snapshot came from a producing inverter.
func (d Data) Online() bool {
	return d.Status == StatusOnline
}
