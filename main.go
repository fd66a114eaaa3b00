// Command bme680mon waits for a BME680 to settle, takes one temperature and
// humidity reading through its uORB lowerhalves and reports it to the
// monitoring API.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Uranury/bme680mon/config"
	"github.com/Uranury/bme680mon/logging"
	"github.com/Uranury/bme680mon/monitor"
	"github.com/Uranury/bme680mon/sensors"
)

func main() {
	cfg, err := config.LoadAgent(os.Args[1:])
	if err != nil {
		if config.IsHelp(err) {
			fmt.Println(err)
			return
		}
		log.Fatal(err)
	}
	_, closeLog := logging.Setup(cfg.Logging, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	timing := sensors.DefaultTiming
	timing.Stabilize = cfg.Stabilize

	err = run(ctx, cfg, timing, os.Stdout)
	stop()
	if err != nil {
		log.Printf("ERROR: %v", err)
	}
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

// run measures and reports once. Only a bad server address or a failed
// measurement is an error; the report outcome is logged.
func run(ctx context.Context, cfg *config.Agent, timing sensors.Timing, progress io.Writer) error {
	client, err := monitor.NewClient(cfg.Server)
	if err != nil {
		return err
	}

	data, err := measure(ctx, cfg, timing, progress)
	if err != nil {
		return err
	}
	report(ctx, client, data)

	log.Println("BME680 example finished.")
	return nil
}

// measure owns the sensor handles: they are closed before it returns,
// whatever the outcome.
func measure(ctx context.Context, cfg *config.Agent, timing sensors.Timing, progress io.Writer) (*sensors.SensorData, error) {
	dev, err := sensors.OpenBME680(cfg.BaroDevice, cfg.HumiDevice)
	if err != nil {
		return nil, err
	}
	log.Printf("%s opened on %s and %s", dev.Name(), cfg.BaroDevice, cfg.HumiDevice)
	defer func() {
		if err := dev.Close(); err != nil {
			log.Printf("WARNING: %v", err)
			return
		}
		log.Println("Sensor file descriptors closed.")
	}()
	dev.Timing = timing

	// A zero request code skips calibration for drivers that calibrate at
	// registration.
	if cfg.CalibrateIoctl != 0 {
		log.Println("Calibrating sensor...")
		if err := dev.Calibrate(cfg.CalibrateIoctl, sensors.DefaultCalibration); err != nil {
			return nil, err
		}
		log.Println("Sensor calibration command sent.")
	}

	log.Printf("Waiting for sensor stabilization (%s)...", timing.Stabilize)
	reads, err := dev.Stabilize(ctx, progress)
	fmt.Fprintln(progress)
	if err != nil {
		return nil, fmt.Errorf("stabilization: %w", err)
	}
	log.Printf("Sensor stabilization complete (Read %d times).", reads)

	reading, err := dev.FinalRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get final sensor readings after stabilization: %w", err)
	}
	log.Println("Final Sensor Readings:")
	log.Printf("  Temperature [C] = %f", reading.Temperature)
	log.Printf("  Humidity [%%rH]  = %f", reading.Humidity)
	log.Printf("  Timestamps [us] baro=%d humi=%d", reading.BaroTimestamp, reading.HumiTimestamp)
	return reading.SensorData(), nil
}

func report(ctx context.Context, client *monitor.Client, data *sensors.SensorData) {
	log.Printf("--- Sending Health Check to %s ---", client.Addr())
	if _, err := client.HealthCheck(ctx); err != nil {
		log.Printf("Health check failed. Check network/server: %v", err)
	} else {
		log.Println("Health check successful or server acknowledged.")
	}

	log.Printf("--- Sending Monitoring Data to %s ---", client.Addr())
	temperature, humidity := data.Fields[sensors.FieldTemperature], data.Fields[sensors.FieldHumidity]
	if _, err := client.PutData(ctx, temperature, humidity); err != nil {
		log.Printf("Failed to send monitoring data: %v", err)
	} else {
		log.Println("Monitoring data sent successfully.")
	}
}
