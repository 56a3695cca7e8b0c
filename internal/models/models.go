package models

// DateTimeLayout формат Date_Time без часового пояса (2024-10-09T00:00:00)
const DateTimeLayout = "2006-01-02T15:04:05"

// Anomaly метка аномалии
type Anomaly string

const (
	AnomalyYes Anomaly = "Yes"
	AnomalyNo  Anomaly = "No"
)

// Названия сигналов датчика
const (
	SignalBatteryV           = "Battery_V"
	SignalWaterTemperature   = "Water_Temperature"
	SignalWaterLevel         = "Water_Level"
	SignalBarometricPressure = "Barometric_Pressure"
)

// Reading одно синтетическое показание датчика с меткой аномалии
type Reading struct {
	BatteryV           float64 `json:"Battery_V"`
	WaterTemperature   float64 `json:"Water_Temperature"`
	WaterLevel         float64 `json:"Water_Level"`
	BarometricPressure float64 `json:"Barometric_Pressure"`
	DateTime           string  `json:"Date_Time"`
	Anomaly            Anomaly `json:"Anomaly"`
}

// Features возвращает признаки в порядке, ожидаемом скейлером и моделью
func (r Reading) Features() []float64 {
	return []float64{r.BatteryV, r.WaterTemperature, r.WaterLevel, r.BarometricPressure}
}

// ResetResponse ответ на POST /reset
type ResetResponse struct {
	Message string `json:"message"`
}
