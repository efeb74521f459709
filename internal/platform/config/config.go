package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centraliza los knobs operativos del servicio.
// Nada de números mágicos repartidos: todo lo que un operador puede querer
// ajustar vive acá con su default.
type Config struct {
	Addr  string
	DBDsn string

	// Horizonte de expiración de una solicitud de acceso pendiente.
	RequestTTL time.Duration

	// Intervalo del barrido periódico de expiración (0 = deshabilitado).
	SweepInterval time.Duration

	// Paginación de listados.
	DefaultPageSize int
	MaxPageSize     int

	// Rango válido de prioridad de políticas.
	PriorityMin int
	PriorityMax int

	// Largo mínimo del motivo en deny / request-info.
	MinReasonLen int
}

// Defaults razonables; cualquiera se pisa por env.
func Default() Config {
	return Config{
		Addr:            ":8080",
		RequestTTL:      48 * time.Hour,
		SweepInterval:   5 * time.Minute,
		DefaultPageSize: 20,
		MaxPageSize:     100,
		PriorityMin:     0,
		PriorityMax:     100,
		MinReasonLen:    10,
	}
}

// FromEnv arma la config desde variables de entorno:
// - PORT, DB_DSN
// - ACCESS_REQUEST_TTL (ej: "48h"), EXPIRATION_SWEEP_INTERVAL (ej: "5m", "0" apaga)
// - PAGE_SIZE_DEFAULT, PAGE_SIZE_MAX
// - POLICY_PRIORITY_MIN, POLICY_PRIORITY_MAX
// - MIN_REASON_LENGTH
func FromEnv() Config {
	cfg := Default()

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Addr = ":" + v
	}
	cfg.DBDsn = strings.TrimSpace(os.Getenv("DB_DSN"))

	if d, ok := envDuration("ACCESS_REQUEST_TTL"); ok {
		cfg.RequestTTL = d
	}
	if d, ok := envDuration("EXPIRATION_SWEEP_INTERVAL"); ok {
		cfg.SweepInterval = d
	}

	if n, ok := envInt("PAGE_SIZE_DEFAULT"); ok && n > 0 {
		cfg.DefaultPageSize = n
	}
	if n, ok := envInt("PAGE_SIZE_MAX"); ok && n > 0 {
		cfg.MaxPageSize = n
	}
	if n, ok := envInt("POLICY_PRIORITY_MIN"); ok {
		cfg.PriorityMin = n
	}
	if n, ok := envInt("POLICY_PRIORITY_MAX"); ok {
		cfg.PriorityMax = n
	}
	if n, ok := envInt("MIN_REASON_LENGTH"); ok && n >= 0 {
		cfg.MinReasonLen = n
	}

	return cfg
}

// ClampPageSize normaliza page size pedido por el cliente.
func (c Config) ClampPageSize(size int) int {
	if size <= 0 {
		return c.DefaultPageSize
	}
	if size > c.MaxPageSize {
		return c.MaxPageSize
	}
	return size
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	if v == "0" {
		return 0, true
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
