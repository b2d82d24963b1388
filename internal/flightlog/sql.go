package flightlog

import (
	_ "embed"
)

const (
	insertFlightSQL = `
INSERT INTO flights (uuid,
                     start_time,
                     config)
VALUES (?, CURRENT_TIMESTAMP, ?)`

	selectFlightSQL = `
SELECT id,
       uuid,
       start_time,
       config
FROM flights
WHERE id = ?`

	selectFlightsSQL = `
SELECT id,
       uuid,
       start_time,
       config
FROM flights`

	insertCycleSQL = `
INSERT INTO cycles (flight_id,
                    timestamp,
                    flight_time,
                    raw_altitude,
                    accel_x,
                    accel_y,
                    accel_z,
                    filtered_altitude,
                    filtered_velocity,
                    filtered_accel,
                    phase,
                    extension,
                    servo_angle,
                    stale,
                    overrun)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectCyclesSQL = `
SELECT timestamp,
       flight_time,
       raw_altitude,
       accel_x,
       accel_y,
       accel_z,
       filtered_altitude,
       filtered_velocity,
       filtered_accel,
       phase,
       extension,
       servo_angle,
       stale,
       overrun
FROM cycles
WHERE flight_id = ?
ORDER BY flight_time`
)

//go:embed schema.sql
var schemaSQL string
