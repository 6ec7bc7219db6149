package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration assembled by NewBootstrap.
type Bootstrap struct {
	Data     *Data
	Log      *Log
	Audit    *Audit
	Breaker  *Breaker
	Recovery *Recovery
	Monitor  *Monitor
}

// Data groups storage backends for the reference entity store.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
	Cache    *Data_Cache
}

// Data_Database is the MySQL connection configuration.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis is the Redis connection configuration.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Data_Cache tunes the two-tier entity cache.
type Data_Cache struct {
	LocalSize int32
	EntityTtl *durationpb.Duration
}

// Log is the logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Audit is the audit trail configuration.
type Audit struct {
	Dir string
}

// Breaker holds defaults for newly created circuit breakers.
type Breaker struct {
	FailureThreshold int32
	CallTimeout      *durationpb.Duration
	ResetTimeout     *durationpb.Duration
}

// Recovery tunes the error-recovery orchestrator policy.
type Recovery struct {
	HistoryCapacity  int32
	RecentWindow     *durationpb.Duration
	EscalationCount  int32
	ExcessiveErrors  int32
	DwellMinimum     *durationpb.Duration
	PerformanceFloor float64
	BudgetScale      float64
	LowBudgetFloor   float64
}

// Monitor tunes the metrics and alerting monitor.
type Monitor struct {
	MaxPoints int32
	Retention *durationpb.Duration
}
