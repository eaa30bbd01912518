package imu

// Sample is a single 6-axis inertial reading.
// Accelerometer values are in m/s², gyroscope values in rad/s.
type Sample struct {
	AccelX float64 `json:"ax"`
	AccelY float64 `json:"ay"`
	AccelZ float64 `json:"az"`

	GyroX float64 `json:"gx"`
	GyroY float64 `json:"gy"`
	GyroZ float64 `json:"gz"`
}
