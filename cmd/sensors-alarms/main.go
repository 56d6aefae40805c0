// Copyright (C) 2025  aattww
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

// sensors-alarms reads one block of registers, runs the configured alarm
// rules over it and mails a summary of everything that triggered. Meant
// to run from cron.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/smtp"
	"os"
	"strings"
	"time"

	serial "github.com/hootrhino/goserial"
	"github.com/spf13/viper"

	"github.com/aattww/sensors/gateway"
	"github.com/aattww/sensors/modbus"
)

const ownAddress = 250

// ReadConfig is the register block the alarm rules index into.
type ReadConfig struct {
	Node     uint8  `mapstructure:"node"`
	Function uint8  `mapstructure:"function"`
	Start    uint16 `mapstructure:"start"`
	Count    uint16 `mapstructure:"count"`
	Signed   bool   `mapstructure:"signed"`
}

// AlarmConfig is one rule from the configuration file.
type AlarmConfig struct {
	Register  int    `mapstructure:"register"`
	Op        string `mapstructure:"op"`
	Threshold string `mapstructure:"threshold"`
	Message   string `mapstructure:"message"`
}

// MailConfig is the SMTP summary destination.
type MailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	Subject  string   `mapstructure:"subject"`
}

// Config is the top level tool configuration.
type Config struct {
	Serial struct {
		Port string `mapstructure:"port"`
		Baud int    `mapstructure:"baud"`
	} `mapstructure:"serial"`
	Read    ReadConfig    `mapstructure:"read"`
	Alarms  []AlarmConfig `mapstructure:"alarms"`
	Mail    MailConfig    `mapstructure:"mail"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func main() {
	configPath := flag.String("config", "", "configuration file")
	dry := flag.Bool("dry", false, "evaluate rules but do not send mail")
	verbose := flag.Bool("verbose", false, "print every rule result")
	flag.Parse()

	if err := run(*configPath, *dry, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, dry, verbose bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	values, err := readBlock(cfg)
	if err != nil {
		return err
	}

	var triggered []string
	for i, ac := range cfg.Alarms {
		alarm := gateway.Alarm{
			Register:  ac.Register,
			Op:        ac.Op,
			Threshold: ac.Threshold,
			Message:   ac.Message,
		}
		fired, err := alarm.Eval(values)
		if err != nil {
			return fmt.Errorf("alarm %d: %w", i, err)
		}
		if verbose {
			fmt.Printf("alarm %d: R%d %s %s -> %v (value %g)\n",
				i, ac.Register, ac.Op, ac.Threshold, fired, values[ac.Register])
		}
		if fired {
			triggered = append(triggered, fmt.Sprintf("%s (R%d = %g)", ac.Message, ac.Register, values[ac.Register]))
		}
	}

	if len(triggered) == 0 {
		if verbose {
			fmt.Println("no alarms triggered")
		}
		return nil
	}

	if dry {
		fmt.Println("triggered (mail suppressed):")
		for _, msg := range triggered {
			fmt.Println("  " + msg)
		}
		return nil
	}
	return sendMail(cfg.Mail, triggered)
}

func loadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sensors")
		v.SetConfigName("sensors-alarms")
		v.SetConfigType("yaml")
	}

	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("read.function", 4)
	v.SetDefault("timeout", "5s")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.subject", "Sensor alarms")

	v.SetEnvPrefix("SENSORS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Read.Count == 0 {
		return nil, errors.New("read.count must be positive")
	}
	if len(cfg.Alarms) == 0 {
		return nil, errors.New("no alarms configured")
	}
	return &cfg, nil
}

// readBlock polls the configured register block once and scales it to
// floats for the rules.
func readBlock(cfg *Config) ([]float64, error) {
	handle, err := serial.Open(&serial.Config{
		Address:  cfg.Serial.Port,
		BaudRate: cfg.Serial.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Serial.Port, err)
	}

	port := modbus.NewSerialPort(handle, uint32(cfg.Serial.Baud))
	defer port.Close()
	client := gateway.NewClient(modbus.New(port, uint32(cfg.Serial.Baud), ownAddress))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	words, err := client.ReadRegisters(ctx, cfg.Read.Node, cfg.Read.Function, cfg.Read.Start, cfg.Read.Count)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(words))
	for i, w := range words {
		if cfg.Read.Signed {
			values[i] = float64(gateway.ToSigned(w))
		} else {
			values[i] = float64(w)
		}
	}
	return values, nil
}

// sendMail delivers one summary mail. Authentication is optional; STARTTLS
// is negotiated by the smtp package when the server offers it.
func sendMail(cfg MailConfig, triggered []string) error {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return errors.New("mail.host, mail.from and mail.to must be configured")
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(cfg.To, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n", cfg.Subject)
	body.WriteString("\r\n")
	for _, msg := range triggered {
		body.WriteString(msg + "\r\n")
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if err := smtp.SendMail(addr, auth, cfg.From, cfg.To, []byte(body.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
