package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Config
	}{
		{
			name: "defaults",
			yaml: "{}\n",
			want: Config{
				Listen:     Listen{Addr: "0.0.0.0", Port: DefaultListenPort},
				DefaultCRS: DefaultCRS,
				Import:     Import{MaxSize: DefaultMaxSize, Workers: DefaultWorkers, Timeout: DefaultTimeout},
			},
		},
		{
			name: "full",
			yaml: `listen:
  addr: 127.0.0.1
  port: 9000
default_crs: EPSG:26194
crs_definitions: zones.yaml
import:
  max_size: 1024
  workers: 2
  timeout: 5s
export:
  minify: true
  dxf_crs: EPSG:26192
`,
			want: Config{
				Listen:         Listen{Addr: "127.0.0.1", Port: 9000},
				DefaultCRS:     "EPSG:26194",
				CRSDefinitions: "zones.yaml",
				Import:         Import{MaxSize: 1024, Workers: 2, Timeout: 5 * time.Second},
				Export:         Export{Minify: true, DXFCRS: "EPSG:26192"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if *cfg != tt.want {
				t.Errorf("got %+v\nwant %+v", *cfg, tt.want)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Errorf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("listen: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("invalid yaml accepted")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DefaultCRS != DefaultCRS || cfg.Import.Workers != DefaultWorkers || cfg.Listen.Port != DefaultListenPort {
		t.Errorf("Default() = %+v", cfg)
	}
}
