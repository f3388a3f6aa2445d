package config

// Quality bounds for the libvpx-vp9 CRF parameter. Out-of-range submissions
// are clamped, never rejected.
const (
	QualityMin = 0
	QualityMax = 63
)

const (
	defaultInputsDir  = "~/.local/share/webmill/inputs"
	defaultResultsDir = "~/.local/share/webmill/results"
	defaultStateDir   = "~/.local/share/webmill/state"
	defaultLogDir     = "~/.local/share/webmill/logs"

	defaultBind         = "127.0.0.1:8666"
	defaultMaxUploadMiB = 2048

	defaultQuality      = 30
	defaultAudioBitrate = "128k"
	defaultVideoBitrate = "1M"
	defaultThreads      = 4

	defaultProgressStrategy     = "stream"
	defaultPollIntervalSeconds  = 2
	defaultCeilingSeconds       = 120
	defaultEncodeSpeedFactor    = 0.8
	defaultDetectionPatchSize   = 20
	defaultDetectionMargin      = 10
	defaultDetectionColor       = "0x00FF00"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputsDir:  defaultInputsDir,
			ResultsDir: defaultResultsDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Server: Server{
			Bind:           defaultBind,
			AllowedOrigins: []string{"*"},
			MaxUploadMiB:   defaultMaxUploadMiB,
		},
		Encoding: Encoding{
			Quality:      defaultQuality,
			AudioBitrate: defaultAudioBitrate,
			VideoBitrate: defaultVideoBitrate,
			Threads:      defaultThreads,
		},
		Progress: Progress{
			Strategy:            defaultProgressStrategy,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			CeilingSeconds:      defaultCeilingSeconds,
			EncodeSpeedFactor:   defaultEncodeSpeedFactor,
		},
		Detection: Detection{
			PatchSize:    defaultDetectionPatchSize,
			Margin:       defaultDetectionMargin,
			DefaultColor: defaultDetectionColor,
			Offsets:      []float64{0.25, 0.5, 0.75},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
