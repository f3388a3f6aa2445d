package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories webmill owns. Inputs hold transient upload
// blobs, results hold finished artifacts until retrieval, state holds the job
// database, and logs hold the service log.
type Paths struct {
	InputsDir  string `toml:"inputs_dir"`
	ResultsDir string `toml:"results_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Server contains the HTTP API settings.
type Server struct {
	Bind           string   `toml:"bind"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadMiB   int      `toml:"max_upload_mib"`
}

// Encoding contains the ffmpeg invocation parameters.
type Encoding struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	Quality       int    `toml:"quality"`
	AudioBitrate  string `toml:"audio_bitrate"`
	VideoBitrate  string `toml:"video_bitrate"`
	Threads       int    `toml:"threads"`
}

// Progress contains the progress-estimation settings.
//
// Strategy selects the observation channel: "stream" parses ffmpeg's
// machine-readable progress output, "size" polls the output artifact size.
type Progress struct {
	Strategy            string  `toml:"strategy"`
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	CeilingSeconds      int     `toml:"ceiling_seconds"`
	EncodeSpeedFactor   float64 `toml:"encode_speed_factor"`
}

// Detection contains the chroma-key background sampling settings.
type Detection struct {
	PatchSize    int       `toml:"patch_size"`
	Margin       int       `toml:"margin"`
	DefaultColor string    `toml:"default_color"`
	Offsets      []float64 `toml:"offsets"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for webmill.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Server    Server    `toml:"server"`
	Encoding  Encoding  `toml:"encoding"`
	Progress  Progress  `toml:"progress"`
	Detection Detection `toml:"detection"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/webmill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("webmill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.InputsDir,
		&c.Paths.ResultsDir,
		&c.Paths.StateDir,
		&c.Paths.LogDir,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Progress.Strategy = strings.ToLower(strings.TrimSpace(c.Progress.Strategy))
	return nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("config: server bind address must not be empty")
	}
	if c.Encoding.Quality < QualityMin || c.Encoding.Quality > QualityMax {
		return fmt.Errorf("config: encoding quality %d outside valid range %d-%d", c.Encoding.Quality, QualityMin, QualityMax)
	}
	if strings.TrimSpace(c.Encoding.AudioBitrate) == "" {
		return errors.New("config: encoding audio_bitrate must not be empty")
	}
	switch c.Progress.Strategy {
	case "stream", "size":
	default:
		return fmt.Errorf("config: progress strategy %q must be \"stream\" or \"size\"", c.Progress.Strategy)
	}
	if c.Progress.PollIntervalSeconds <= 0 {
		return errors.New("config: progress poll_interval_seconds must be positive")
	}
	if c.Progress.CeilingSeconds <= 0 {
		return errors.New("config: progress ceiling_seconds must be positive")
	}
	if c.Progress.EncodeSpeedFactor <= 0 {
		return errors.New("config: progress encode_speed_factor must be positive")
	}
	if c.Detection.PatchSize <= 0 {
		return errors.New("config: detection patch_size must be positive")
	}
	if c.Detection.Margin < 0 {
		return errors.New("config: detection margin must not be negative")
	}
	for _, offset := range c.Detection.Offsets {
		if offset < 0 || offset > 1 {
			return fmt.Errorf("config: detection offset %g outside [0,1]", offset)
		}
	}
	return nil
}

// EnsureDirectories creates the directories webmill needs at startup. They
// live for the whole process; nothing tears them down mid-run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InputsDir, c.Paths.ResultsDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for encoding and pixel
// extraction.
func (c *Config) FFmpegBinary() string {
	if binary := strings.TrimSpace(c.Encoding.FFmpegBinary); binary != "" {
		return binary
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	if binary := strings.TrimSpace(c.Encoding.FFprobeBinary); binary != "" {
		return binary
	}
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
