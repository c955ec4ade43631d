package config

const (
	defaultDataDir            = "~/.local/share/chronicle"
	defaultLogDir             = "~/.local/share/chronicle/logs"
	defaultPollInterval       = 5
	defaultMaxWait            = 300
	defaultReportInterval     = 60
	defaultErrorRetryInterval = 10
	defaultMaxRetries         = 0
	defaultProducerVersion    = "chronicle/dev"
	defaultSource             = "import"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			MaxWait:            defaultMaxWait,
			ReportInterval:     defaultReportInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxRetries:         defaultMaxRetries,
		},
		Ingest: Ingest{
			ProducerVersion: defaultProducerVersion,
			DefaultSource:   defaultSource,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
