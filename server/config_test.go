package server

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/reseg/dvid"
)

const testConfig = `
[server]
httpAddress = ":9000"
host = "reseg.example.org"
note = "test server"
allowed_origins = ["http://localhost:3000"]
max_voxels = 1000000

[logging]
logfile = "logs/reseg.log"
max_log_size = 10
max_log_age = 7

[store]
path = "db"
blob_url = "mem://"
compression = "snappy"

[cache]
size = 16

[reseg]
connectivity = "4"
arc = "feature"
path = "max"
workers = 4
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(filename, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(filename)
	if err != nil {
		t.Fatalf("can't load config: %v", err)
	}
	if c.Server.HTTPAddress != ":9000" || c.Host() != "reseg.example.org" {
		t.Errorf("bad server config %+v", c.Server)
	}
	if len(c.Server.AllowedOrigins) != 1 || c.Server.MaxUpload != DefaultMaxUpload {
		t.Errorf("bad server defaults %+v", c.Server)
	}
	if c.Server.MaxVoxels != 1000000 {
		t.Errorf("expected max_voxels 1000000, got %d", c.Server.MaxVoxels)
	}
	if c.Store.Path != filepath.Join(dir, "db") || c.Store.Compression != "snappy" || c.Store.BlobURL != "mem://" {
		t.Errorf("bad store config %+v", c.Store)
	}
	if c.Logging.Logfile != filepath.Join(dir, "logs", "reseg.log") || c.Logging.MaxSize != 10 {
		t.Errorf("bad logging config %+v", c.Logging)
	}
	if c.Cache.Size != 16 || c.Reseg.Workers != 4 || c.Reseg.Connectivity != "4" {
		t.Errorf("bad cache or reseg config %+v %+v", c.Cache, c.Reseg)
	}
}

func TestConfigErrors(t *testing.T) {
	if _, err := LoadConfig(""); !errors.Is(err, dvid.ErrInvalidArgument) {
		t.Errorf("expected invalid argument without file, got %v", err)
	}
	dir := t.TempDir()
	for name, contents := range map[string]string{
		"conn.toml":   "[reseg]\nconnectivity = \"5\"\n",
		"arc.toml":    "[reseg]\narc = \"sobel\"\n",
		"path.toml":   "[reseg]\npath = \"power:0\"\n",
		"auth.toml":   "[auth]\nauth_file = \"users.json\"\n",
		"syntax.toml": "[server\n",
		"voxels.toml": "[server]\nmax_voxels = -1\n",
	} {
		filename := filepath.Join(dir, name)
		if err := os.WriteFile(filename, []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(filename); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Server.HTTPAddress != DefaultWebAddress || !c.Store.InMemory || c.Cache.Size != DefaultCacheSize {
		t.Errorf("bad default config %+v", c)
	}
	if c.Server.MaxVoxels != DefaultMaxVoxels {
		t.Errorf("expected default max_voxels %d, got %d", DefaultMaxVoxels, c.Server.MaxVoxels)
	}
	if c.Auth.Enabled() {
		t.Errorf("default config should not require authorization")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
