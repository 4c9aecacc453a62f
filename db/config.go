package db

import (
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

var validLogLevels = []string{"silent", "error", "warn", "info"}

// Config describes the MySQL system of record and its connection pool
type Config struct {
	Host string `mapstructure:"host"`
	// default: 3306
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// default: "utf8mb4"
	Charset string `mapstructure:"charset"`
	// time zone for DATETIME columns, any name time.LoadLocation accepts
	// default: "Local"
	Loc string `mapstructure:"loc"`
	// extra DSN parameters, e.g. tls or transaction_isolation
	Params map[string]string `mapstructure:"params"`

	// dial timeout
	// default: 5s
	Timeout time.Duration `mapstructure:"timeout"`
	// socket IO timeouts; keep them above reconciler.tx_timeout
	// default: 30s
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// default: 25
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// default: 10
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// default: 30m
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// default: 10m
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// gorm log level: silent, error, warn or info
	// default: "warn"
	LogLevel string `mapstructure:"log_level"`
	// statements slower than this are logged at warn
	// default: 1s
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// DSN formats the go-sql-driver connection string. parseTime is always on
// since the models carry time.Time columns.
func (c *Config) DSN() string {
	loc, err := time.LoadLocation(c.Loc)
	if err != nil {
		loc = time.Local
	}

	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Loc = loc
	dc.Timeout = c.Timeout
	dc.ReadTimeout = c.ReadTimeout
	dc.WriteTimeout = c.WriteTimeout
	dc.Params = map[string]string{"charset": c.Charset}
	for k, v := range c.Params {
		dc.Params[k] = v
	}
	return dc.FormatDSN()
}

func DefaultConfig() *Config {
	return &Config{
		Port:            3306,
		Charset:         "utf8mb4",
		Loc:             "Local",
		Timeout:         5 * time.Second,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		LogLevel:        "warn",
		SlowThreshold:   time.Second,
	}
}

// MergeDefaults fills zero values with defaults and returns c
func (c *Config) MergeDefaults() *Config {
	d := DefaultConfig()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Charset == "" {
		c.Charset = d.Charset
	}
	if c.Loc == "" {
		c.Loc = d.Loc
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = d.ConnMaxIdleTime
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = d.SlowThreshold
	}
	return c
}

// Validate checks the connection fields. An empty password is allowed for
// local setups.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return ErrInvalidConfig("host is required")
	case c.Port <= 0 || c.Port > 65535:
		return ErrInvalidConfig("port must be between 1 and 65535")
	case c.User == "":
		return ErrInvalidConfig("user is required")
	case c.Database == "":
		return ErrInvalidConfig("database is required")
	}
	if _, err := time.LoadLocation(c.Loc); err != nil {
		return ErrInvalidConfig("loc: " + err.Error())
	}
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return ErrInvalidConfig("log_level must be one of: " + strings.Join(validLogLevels, ", "))
	}
	return nil
}
