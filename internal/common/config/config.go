package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type DB struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Pass           string        `yaml:"password"`
	Name           string        `yaml:"database"`
	SSLMode        string        `yaml:"sslmode"`
	MaxConns       int32         `yaml:"max_conns"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// DSN renders a postgres URL with the credentials and database name escaped.
func (d DB) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Pass),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

type MQ struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	UseTLS   bool   `yaml:"tls"`
	Exchange string `yaml:"exchange"`
}

// Enabled is false when no broker is configured; events then stay in-process.
func (m MQ) Enabled() bool { return m.Host != "" }

type Redis struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

func (r Redis) Enabled() bool { return r.Addr != "" }

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Realtime struct {
	InstanceID   string        `yaml:"instance_id"`
	SendBuffer   int           `yaml:"send_buffer"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type App struct {
	Database DB       `yaml:"database"`
	Rabbit   MQ       `yaml:"rabbitmq"`
	Redis    Redis    `yaml:"redis"`
	HTTP     HTTP     `yaml:"http"`
	Realtime Realtime `yaml:"realtime"`
}

func Defaults() App {
	return App{
		Database: DB{
			Host: "localhost", Port: 5432, User: "stall", Pass: "stall", Name: "stall",
			SSLMode: "disable", MaxConns: 20, AcquireTimeout: 5 * time.Second,
		},
		Rabbit: MQ{Port: 5672, User: "guest", Pass: "guest", VHost: "/", Exchange: "stall.events"},
		Redis:  Redis{IdempotencyTTL: 24 * time.Hour},
		HTTP: HTTP{
			Addr: ":3000", ReadTimeout: 10 * time.Second, WriteTimeout: 15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Realtime: Realtime{SendBuffer: 64, PingInterval: 30 * time.Second},
	}
}

// Load reads the YAML file at path over the defaults, then applies STALL_* env overrides.
// An empty path skips the file.
func Load(path string) (App, error) {
	a := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return App{}, err
		}
		if err := yaml.Unmarshal(b, &a); err != nil {
			return App{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(&a)
	if a.Database.Host == "" {
		return App{}, errors.New("invalid config: missing database host")
	}
	if a.Database.MaxConns <= 0 {
		return App{}, errors.New("invalid config: database.max_conns must be positive")
	}
	if a.Realtime.SendBuffer <= 0 {
		a.Realtime.SendBuffer = 64
	}
	return a, nil
}

func applyEnv(a *App) {
	str(&a.Database.Host, "STALL_DB_HOST")
	num(&a.Database.Port, "STALL_DB_PORT")
	str(&a.Database.User, "STALL_DB_USER")
	str(&a.Database.Pass, "STALL_DB_PASSWORD")
	str(&a.Database.Name, "STALL_DB_NAME")
	str(&a.Rabbit.Host, "STALL_RABBITMQ_HOST")
	num(&a.Rabbit.Port, "STALL_RABBITMQ_PORT")
	str(&a.Rabbit.User, "STALL_RABBITMQ_USER")
	str(&a.Rabbit.Pass, "STALL_RABBITMQ_PASSWORD")
	str(&a.Redis.Addr, "STALL_REDIS_ADDR")
	str(&a.HTTP.Addr, "STALL_HTTP_ADDR")
	str(&a.Realtime.InstanceID, "STALL_INSTANCE_ID")
}

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func num(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
