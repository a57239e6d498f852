package config

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"

	"github.com/voxeldelve/mapsync/engine/mslog"
)

const (
	_DEFAULT_CONFIG_FILE  = "mapsync.ini"
	_DEFAULT_LOCALHOST_IP = "127.0.0.1"
	_DEFAULT_HTTP_IP      = "127.0.0.1"
	_DEFAULT_LOG_LEVEL    = "debug"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	mapSyncConfig  *MapSyncConfig
	configLock     sync.Mutex
)

// ServerConfig defines fields of the server config
type ServerConfig struct {
	Ip                     string
	GameplayPort           int
	BulkPort               int
	ServeKCP               bool
	CompressConnection     bool
	HTTPIp                 string
	HTTPPort               int
	LogFile                string
	LogStderr              bool
	LogLevel               string
	GoMaxProcs             int
	HeartbeatCheckInterval int
}

// ClientConfig defines fields of the client config
type ClientConfig struct {
	ServerIp           string
	GameplayPort       int
	BulkPort           int
	UseKCP             bool
	CompressConnection bool
	PreferredName      string
	LogFile            string
	LogStderr          bool
	LogLevel           string
	GoMaxProcs         int
}

// MapSyncConfig defines the total config file structure
type MapSyncConfig struct {
	Server ServerConfig
	Client ClientConfig
}

// SetConfigFile sets the config file path (mapsync.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of mapsync.ini
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total mapsync config
func Get() *MapSyncConfig {
	configLock.Lock()
	defer configLock.Unlock() // protect concurrent access from multiple goroutines
	if mapSyncConfig == nil {
		mapSyncConfig = readMapSyncConfig()
	}
	return mapSyncConfig
}

// Reload forces to reload the whole config
func Reload() *MapSyncConfig {
	configLock.Lock()
	mapSyncConfig = nil
	configLock.Unlock()

	return Get()
}

// GetServer returns the server config
func GetServer() *ServerConfig {
	return &Get().Server
}

// GetClient returns the client config
func GetClient() *ClientConfig {
	return &Get().Client
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readMapSyncConfig() *MapSyncConfig {
	config := MapSyncConfig{}
	mslog.Infof("Using config file: %s", configFilePath)
	iniFile, err := ini.Load(configFilePath)
	checkConfigError(err, "")

	readServerConfig(iniFile.Section("server"), &config.Server)
	readClientConfig(iniFile.Section("client"), &config.Client)

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		if secName == "default" || secName == "server" || secName == "client" {
			continue
		}
		mslog.Errorf("unknown section: %s", secName)
	}

	validateConfig(&config)
	return &config
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) {
	sc.Ip = _DEFAULT_LOCALHOST_IP
	sc.GameplayPort = 14001
	sc.BulkPort = 14002
	sc.HTTPIp = _DEFAULT_HTTP_IP
	sc.HTTPPort = 0 // pprof not enabled by default
	sc.LogFile = "server.log"
	sc.LogStderr = true
	sc.LogLevel = _DEFAULT_LOG_LEVEL
	sc.HeartbeatCheckInterval = 0 // heartbeat check disabled by default

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		switch name {
		case "ip":
			sc.Ip = key.MustString(sc.Ip)
		case "gameplay_port":
			sc.GameplayPort = key.MustInt(sc.GameplayPort)
		case "bulk_port":
			sc.BulkPort = key.MustInt(sc.BulkPort)
		case "serve_kcp":
			sc.ServeKCP = key.MustBool(sc.ServeKCP)
		case "compress_connection":
			sc.CompressConnection = key.MustBool(sc.CompressConnection)
		case "http_ip":
			sc.HTTPIp = key.MustString(sc.HTTPIp)
		case "http_port":
			sc.HTTPPort = key.MustInt(sc.HTTPPort)
		case "log_file":
			sc.LogFile = key.MustString(sc.LogFile)
		case "log_stderr":
			sc.LogStderr = key.MustBool(sc.LogStderr)
		case "log_level":
			sc.LogLevel = key.MustString(sc.LogLevel)
		case "gomaxprocs":
			sc.GoMaxProcs = key.MustInt(sc.GoMaxProcs)
		case "heartbeat_check_interval":
			sc.HeartbeatCheckInterval = key.MustInt(sc.HeartbeatCheckInterval)
		default:
			mslog.Errorf("unknown server config: %s", name)
		}
	}
}

func readClientConfig(sec *ini.Section, cc *ClientConfig) {
	cc.ServerIp = _DEFAULT_LOCALHOST_IP
	cc.GameplayPort = 14001
	cc.BulkPort = 14002
	cc.PreferredName = "player"
	cc.LogFile = "client.log"
	cc.LogStderr = true
	cc.LogLevel = _DEFAULT_LOG_LEVEL

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		switch name {
		case "server_ip":
			cc.ServerIp = key.MustString(cc.ServerIp)
		case "gameplay_port":
			cc.GameplayPort = key.MustInt(cc.GameplayPort)
		case "bulk_port":
			cc.BulkPort = key.MustInt(cc.BulkPort)
		case "use_kcp":
			cc.UseKCP = key.MustBool(cc.UseKCP)
		case "compress_connection":
			cc.CompressConnection = key.MustBool(cc.CompressConnection)
		case "preferred_name":
			cc.PreferredName = key.MustString(cc.PreferredName)
		case "log_file":
			cc.LogFile = key.MustString(cc.LogFile)
		case "log_stderr":
			cc.LogStderr = key.MustBool(cc.LogStderr)
		case "log_level":
			cc.LogLevel = key.MustString(cc.LogLevel)
		case "gomaxprocs":
			cc.GoMaxProcs = key.MustInt(cc.GoMaxProcs)
		default:
			mslog.Errorf("unknown client config: %s", name)
		}
	}
}

func validateConfig(config *MapSyncConfig) {
	if config.Server.GameplayPort <= 0 || config.Server.GameplayPort > 65535 {
		panic(errors.Errorf("invalid server gameplay_port: %d", config.Server.GameplayPort))
	}
	if config.Server.BulkPort <= 0 || config.Server.BulkPort > 65535 {
		panic(errors.Errorf("invalid server bulk_port: %d", config.Server.BulkPort))
	}
	if config.Server.GameplayPort == config.Server.BulkPort {
		panic(errors.Errorf("server gameplay_port and bulk_port must differ, both are %d", config.Server.GameplayPort))
	}
	if config.Client.GameplayPort == config.Client.BulkPort {
		panic(errors.Errorf("client gameplay_port and bulk_port must differ, both are %d", config.Client.GameplayPort))
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		mslog.Panic(errors.Wrap(err, fmt.Sprintf("read config error: %s", msg)))
	}
}
