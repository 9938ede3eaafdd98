package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/hsgames/netterm/app"
	"github.com/pkg/errors"
)

const (
	defaultRemoteAddr = "10.0.0.2"
	defaultRemotePort = "6668"
	defaultLocalPort  = "6666"
	recvBufSize       = 1024
)

// Config is the endpoint configuration persisted between runs. The
// transport is not part of it: -tcp applies to one run only.
type Config struct {
	RemoteAddr string `yaml:"remote_addr" json:"remote_addr"`
	RemotePort string `yaml:"remote_port" json:"remote_port"`
	LocalPort  string `yaml:"local_port" json:"local_port"`
}

func defaultConfig() Config {
	return Config{
		RemoteAddr: defaultRemoteAddr,
		RemotePort: defaultRemotePort,
		LocalPort:  defaultLocalPort,
	}
}

type flags struct {
	app.LogFlags
	tcp      bool
	local    string
	remote   string
	team     uint
	lineMode bool
	noClient bool
	appendLF bool
	dumpBin  bool
	capture  string
	config   string
	mirror   string
	pprof    string
}

func (f *flags) register(fs *flag.FlagSet) {
	f.LogFlags.Register(fs)
	fs.BoolVar(&f.tcp, "tcp", false, "use TCP instead of UDP")
	fs.StringVar(&f.local, "local", "", "local port (default "+defaultLocalPort+")")
	fs.StringVar(&f.remote, "remote", "", "remote host:port (default "+defaultRemoteAddr+":"+defaultRemotePort+")")
	fs.UintVar(&f.team, "team", 0, "team number, sets remote to 10.TE.AM.2")
	fs.BoolVar(&f.lineMode, "linemode", false, "send by line instead of by character")
	fs.BoolVar(&f.noClient, "noclient", false, "receive only, do not start the network client")
	fs.BoolVar(&f.appendLF, "appendlf", false, "append a line feed to received lines ending in CR")
	fs.BoolVar(&f.dumpBin, "dumpbin", false, "dump received data as hex")
	fs.StringVar(&f.capture, "capture", "", "directory to capture all received data to")
	fs.StringVar(&f.config, "config", "", "config file (.yaml or .json)")
	fs.StringVar(&f.mirror, "mirror", "", "serve received data to websocket viewers on this address")
	fs.StringVar(&f.pprof, "pprof", "", "serve pprof on this address")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "netterm.yaml"
	}
	return filepath.Join(dir, "netterm", "netterm.yaml")
}

// loadConfig reads path, falling back to defaults when it does not
// exist yet.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := app.LoadConf(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// apply overrides cfg with the command line and reports whether any
// endpoint changed.
func (f *flags) apply(cfg *Config) (changed bool, err error) {
	if f.team != 0 {
		cfg.RemoteAddr = fmt.Sprintf("10.%d.%d.2", f.team/100, f.team%100)
		cfg.RemotePort = defaultRemotePort
		cfg.LocalPort = defaultLocalPort
		changed = true
	}
	if f.local != "" {
		cfg.LocalPort = f.local
		changed = true
	}
	if f.remote != "" {
		host, port, err := net.SplitHostPort(f.remote)
		if err != nil || host == "" || port == "" {
			return false, errors.Errorf("netterm: invalid remote address/port [%s]", f.remote)
		}
		cfg.RemoteAddr = host
		cfg.RemotePort = port
		changed = true
	}
	return changed, nil
}
