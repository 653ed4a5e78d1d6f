package config

const (
	defaultLogDir              = "~/.local/share/gebr/logs"
	defaultSocketName          = "gebrd.sock"
	defaultLockName            = "gebrd.lock"
	defaultPIDName             = "gebrd.pid"
	defaultAPIBind             = "127.0.0.1:7489"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultQueue               = "default"
	defaultEventBuffer         = 256
	defaultSubmitCommand       = "msub"
	defaultSignalCommand       = "mjobctl"
	defaultStatusCommand       = "checkjob"
	defaultPollIntervalSeconds = 1
	defaultMpirun              = "mpirun"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Scheduler: Scheduler{
			ReservedQueues: []string{defaultQueue},
			DefaultQueue:   defaultQueue,
			EventBuffer:    defaultEventBuffer,
		},
		Batch: Batch{
			Enabled:             true,
			SubmitCommand:       defaultSubmitCommand,
			SignalCommand:       defaultSignalCommand,
			StatusCommand:       defaultStatusCommand,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			OutputDir:           "~",
		},
	}
}
