package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/ift"
	"github.com/janelia-flyem/reseg/storage"
)

const (
	// DefaultWebAddress is the default address of the web server.
	DefaultWebAddress = "localhost:8000"

	// DefaultCacheSize is the size in MB of the volume cache if none is configured.
	DefaultCacheSize = 64

	// DefaultMaxUpload is the largest request body in MB if none is configured.
	DefaultMaxUpload = 256

	// DefaultMaxVoxels is the largest volume a request may create if none is configured.
	DefaultMaxVoxels = 1 << 27
)

// Config is the TOML configuration of a server.
type Config struct {
	Server  serverConfig
	Logging dvid.LogConfig
	Auth    authConfig
	Store   storage.Config
	Cache   cacheConfig
	Reseg   resegConfig
}

type serverConfig struct {
	HTTPAddress string `toml:"httpAddress"`
	Host        string
	Note        string

	// AllowedOrigins for CORS.  If empty, all origins are allowed.
	AllowedOrigins []string `toml:"allowed_origins"`

	// MaxUpload is the largest request body in MB.
	MaxUpload int `toml:"max_upload"`

	// MaxVoxels is the largest volume, in voxels, that an upload or generator may create.
	MaxVoxels int64 `toml:"max_voxels"`

	// ShutdownDelay is the number of seconds given to running requests on shutdown.
	ShutdownDelay int `toml:"shutdown_delay"`
}

type cacheConfig struct {
	// Size of the volume and graph cache in MB.
	Size int
}

// resegConfig holds defaults for requests that do not set them.
type resegConfig struct {
	Connectivity string
	Arc          string
	Path         string
	Workers      int
}

// DefaultConfig returns the configuration used when no file is given: an in-memory
// store and unauthenticated access on DefaultWebAddress.
func DefaultConfig() *Config {
	c := &Config{}
	c.setDefaults()
	c.Store.InMemory = true
	return c
}

func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = DefaultWebAddress
	}
	if c.Server.MaxUpload == 0 {
		c.Server.MaxUpload = DefaultMaxUpload
	}
	if c.Server.MaxVoxels == 0 {
		c.Server.MaxVoxels = DefaultMaxVoxels
	}
	if c.Server.ShutdownDelay == 0 {
		c.Server.ShutdownDelay = 5
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = DefaultCacheSize
	}
	if c.Reseg.Workers == 0 {
		c.Reseg.Workers = 1
	}
}

// LoadConfig reads a TOML configuration file.  Relative paths in the file are taken
// relative to the file's directory.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no server TOML configuration file provided: %w", dvid.ErrInvalidArgument)
	}
	c := new(Config)
	md, err := toml.DecodeFile(filename, c)
	if err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		dvid.Warningf("Ignoring unknown settings in %s: %v\n", filename, undecoded)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	dvid.Infof("Loaded configuration from %s\n", filename)
	return c, nil
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = dvid.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path")
		}
	}

	// [auth].auth_file
	if c.Auth.AuthFile != "" {
		c.Auth.AuthFile, err = dvid.ConvertToAbsolute(c.Auth.AuthFile, configDir)
		if err != nil {
			return fmt.Errorf("error converting auth_file setting to absolute path")
		}
	}

	// [store].path
	if c.Store.Path != "" {
		c.Store.Path, err = dvid.ConvertToAbsolute(c.Store.Path, configDir)
		if err != nil {
			return fmt.Errorf("error converting store path %q to absolute path", c.Store.Path)
		}
	}
	return nil
}

// Validate checks the [reseg] defaults and the [auth] settings.
func (c *Config) Validate() error {
	if c.Reseg.Connectivity != "" {
		if _, err := adjacency.ParseConnectivity(c.Reseg.Connectivity); err != nil {
			return fmt.Errorf("[reseg] connectivity: %w", err)
		}
	}
	switch strings.ToLower(c.Reseg.Arc) {
	case "", "uniform", "feature", "root", "lab":
	default:
		return fmt.Errorf("[reseg] unknown arc cost %q: %w", c.Reseg.Arc, dvid.ErrInvalidArgument)
	}
	if _, err := ift.ParsePathCost(c.Reseg.Path); err != nil {
		return fmt.Errorf("[reseg] path: %w", err)
	}
	if c.Server.MaxVoxels < 0 {
		return fmt.Errorf("[server] negative max_voxels %d: %w", c.Server.MaxVoxels, dvid.ErrInvalidArgument)
	}
	if c.Auth.AuthFile != "" && c.Auth.SecretKey == "" {
		return fmt.Errorf("[auth] auth_file given without secret_key: %w", dvid.ErrInvalidArgument)
	}
	return nil
}

// Host returns the configured host name, or the machine's host name plus the port of
// the web server.
func (c *Config) Host() string {
	if c.Server.Host != "" {
		return c.Server.Host
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	parts := strings.Split(c.Server.HTTPAddress, ":")
	if len(parts) > 1 {
		host = host + ":" + parts[len(parts)-1]
	}
	return host
}
