// Package config loads settings for the agent and the monitor server from
// flags, the environment and an optional .env file. Every setting has a
// default, so both programs run with no configuration at all.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/Uranury/bme680mon/monitor"
)

// Logging is shared by both programs.
type Logging struct {
	LogFile       string `long:"log-file" env:"LOG_FILE" description:"also write logs to this file, rotated by size"`
	LogMaxSizeMB  int    `long:"log-max-size" env:"LOG_MAX_SIZE_MB" default:"10" description:"rotate the log file after this many megabytes"`
	LogMaxBackups int    `long:"log-max-backups" env:"LOG_MAX_BACKUPS" default:"3" description:"rotated log files to keep"`
}

// Agent configures the BME680 monitor agent. With the pressure measurement
// disabled the temperature lowerhalf is sensor_temp0 and goes in BaroDevice.
type Agent struct {
	BaroDevice     string        `long:"baro" env:"BME680_BARO_DEVICE" default:"/dev/uorb/sensor_baro0" description:"barometer lowerhalf"`
	HumiDevice     string        `long:"humi" env:"BME680_HUMI_DEVICE" default:"/dev/uorb/sensor_humi0" description:"humidity lowerhalf"`
	Server         string        `long:"server" env:"MONITOR_SERVER" default:"10.200.23.240:2242" description:"monitoring API host:port"`
	Stabilize      time.Duration `long:"stabilize" env:"BME680_STABILIZE" default:"15s" description:"settle time before the final reading"`
	CalibrateIoctl uint          `long:"calibrate-ioctl" env:"BME680_CALIBRATE_IOCTL" default:"0x2185" base:"0" description:"SNIOC_CALIBRATE request code"`

	Logging
}

func (a *Agent) Validate() error {
	if a.BaroDevice == "" || a.HumiDevice == "" {
		return errors.New("both sensor device paths are required")
	}
	if a.Stabilize < 0 {
		return fmt.Errorf("stabilize must not be negative, got %s", a.Stabilize)
	}
	if _, _, err := monitor.ParseAddr(a.Server); err != nil {
		return err
	}
	return nil
}

// Monitord configures the monitoring API server.
type Monitord struct {
	Listen       string `long:"listen" env:"MONITOR_LISTEN" default:":2242" description:"address to serve the API on"`
	DB           string `long:"db" env:"MONITOR_DB" default:"monitor.db" description:"SQLite database for sample history"`
	InfluxURL    string `long:"influx-url" env:"INFLUX_URL" description:"mirror samples to this InfluxDB"`
	InfluxToken  string `long:"influx-token" env:"INFLUX_TOKEN"`
	InfluxOrg    string `long:"influx-org" env:"INFLUX_ORG"`
	InfluxBucket string `long:"influx-bucket" env:"INFLUX_BUCKET"`

	Logging
}

// InfluxEnabled reports whether an InfluxDB mirror is configured.
func (m *Monitord) InfluxEnabled() bool {
	return m.InfluxURL != "" && m.InfluxBucket != ""
}

func (m *Monitord) Validate() error {
	if m.Listen == "" {
		return errors.New("listen address is required")
	}
	if m.DB == "" {
		return errors.New("database path is required")
	}
	return nil
}

// LoadAgent reads .env files, then parses args over the environment.
func LoadAgent(args []string, envFiles ...string) (*Agent, error) {
	var cfg Agent
	if err := parse(&cfg, args, envFiles); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func LoadMonitord(args []string, envFiles ...string) (*Monitord, error) {
	var cfg Monitord
	if err := parse(&cfg, args, envFiles); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// IsHelp reports whether err is the --help request rather than a failure.
func IsHelp(err error) bool {
	var ferr *flags.Error
	return errors.As(err, &ferr) && ferr.Type == flags.ErrHelp
}

func parse(cfg any, args []string, envFiles []string) error {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}
	return nil
}
