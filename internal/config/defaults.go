package config

const (
	defaultBlockSize     = 200
	defaultLeaseMsec     = 60_000
	defaultDBTimeoutMsec = 5_000
	defaultMaxAttempts   = 5
	defaultRampSec       = 0
	defaultCodecThreads  = 1
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultLogDir        = "."
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Transfer: Transfer{
			BlockSize:     defaultBlockSize,
			LeaseMsec:     defaultLeaseMsec,
			DBTimeoutMsec: defaultDBTimeoutMsec,
			MaxAttempts:   defaultMaxAttempts,
			RampSec:       defaultRampSec,
			CodecThreads:  defaultCodecThreads,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Paths: Paths{
			LogDir: defaultLogDir,
		},
	}
}
