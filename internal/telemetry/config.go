package telemetry

// Config holds OpenTelemetry export settings.
type Config struct {
	// ServiceName is reported as service.name.
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// Environment is reported as deployment.environment.
	Environment string

	// Enabled switches from noop providers to the SDK.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector (host:port). Without it spans and
	// metrics are recorded but never exported.
	Endpoint string

	// Insecure disables TLS towards Endpoint.
	Insecure bool

	// SampleRate is the fraction of runs traced (0.0 to 1.0).
	SampleRate float64
}

// DefaultConfig disables telemetry; a CLI run exports nothing unless asked.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "toolgate",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}
