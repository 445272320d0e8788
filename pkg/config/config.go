package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"meshd/pkg/utils/constants"

	"github.com/spf13/viper"
)

var config *Config

// LaunchDirEnv 记录启动命令时的工作目录，脱离终端的子进程工作目录是 /，
// 命令行中的相对路径按这个目录解析
const LaunchDirEnv = "_MESHD_LAUNCH_DIR"

// configViperMutex 保护全局配置加载时的 viper 全局状态操作
var configViperMutex sync.Mutex

type Config struct {
	NetName             string            `yaml:"netname,omitempty" mapstructure:"netname"`
	ConfBase            string            `yaml:"confbase" mapstructure:"confbase"`
	Daemonize           bool              `yaml:"daemonize" mapstructure:"daemonize"`
	PidFile             string            `yaml:"pidfile" mapstructure:"pidfile"`
	Socket              string            `yaml:"socket" mapstructure:"socket"`
	DebugLevel          int               `yaml:"debug_level" mapstructure:"debug_level"`
	RestartDelay        time.Duration     `yaml:"restart_delay" mapstructure:"restart_delay"`
	MaintenanceInterval time.Duration     `yaml:"maintenance_interval" mapstructure:"maintenance_interval"`
	Listen              string            `yaml:"listen,omitempty" mapstructure:"listen"`
	Nodes               []Node            `yaml:"nodes,omitempty" mapstructure:"nodes"`
	Log                 Log               `yaml:"log" mapstructure:"log"`
	Env                 map[string]string `yaml:"env,omitempty" mapstructure:"env,omitempty"`
}

// Node 是配置中声明的对端节点
type Node struct {
	Name    string   `yaml:"name" mapstructure:"name"`
	Address string   `yaml:"address" mapstructure:"address"`
	Subnets []string `yaml:"subnets,omitempty" mapstructure:"subnets"`
}

type Log struct {
	FileEnabled  bool   `yaml:"file_enabled" mapstructure:"file_enabled"`
	FilePath     string `yaml:"file_path,omitempty" mapstructure:"file_path,omitempty"`
	FileSize     int    `yaml:"file_size,omitempty" mapstructure:"file_size,omitempty"`
	FileCompress bool   `yaml:"file_compress,omitempty" mapstructure:"file_compress,omitempty"`
	MaxAge       int    `yaml:"max_age,omitempty" mapstructure:"max_age,omitempty"`
	MaxBackups   int    `yaml:"max_backups,omitempty" mapstructure:"max_backups,omitempty"`
	Syslog       bool   `yaml:"syslog" mapstructure:"syslog"`
}

func setDefault() {
	viper.SetDefault("netname", constants.DefaultNetName)
	viper.SetDefault("confbase", constants.MeshdHome)
	viper.SetDefault("daemonize", true)
	viper.SetDefault("pidfile", constants.DaemonPidFilePath)
	viper.SetDefault("socket", constants.DaemonSockFilePath)
	viper.SetDefault("debug_level", constants.DebugNothing)
	viper.SetDefault("restart_delay", constants.DefaultRestartDelay)
	viper.SetDefault("maintenance_interval", constants.DefaultMaintenanceInterval)
	viper.SetDefault("log", map[string]any{
		"file_path":     constants.DaemonLogFilePath,
		"file_enabled":  false,
		"file_compress": false,
		"file_size":     10,
		"max_age":       7,
		"max_backups":   7,
		"syslog":        true,
	})
}

func GetConfig() *Config {
	return config
}

// SetConfig 加载配置文件并覆盖全局配置
//
// 配置文件不存在时按 . etc ../etc ~/.meshd 的顺序查找 meshd.yml，
// 环境变量使用 MESHD_ 前缀，例如 MESHD_DEBUG_LEVEL=3。
// 命令行标志在加载完成后覆盖文件中的值。
func SetConfig(configFile string) {
	configViperMutex.Lock()
	defer configViperMutex.Unlock()

	configFile = AbsPath(configFile)
	ConfigFileFlag = AbsPath(ConfigFileFlag)

	_, err := os.Stat(configFile)
	if configFile == "" || errors.Is(err, os.ErrNotExist) {
		viper.SetConfigName(constants.DefaultDaemonName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("etc")
		viper.AddConfigPath("../etc")
		viper.AddConfigPath(constants.MeshdHome)
	} else if err != nil {
		log.Fatal(err)
	} else {
		viper.SetConfigFile(configFile)
	}

	viper.SetEnvPrefix("MESHD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefault()

	err = viper.ReadInConfig()
	if err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		log.Fatalf("Error getting config file, %v", err)
	}

	var cfg Config
	err = viper.Unmarshal(&cfg)
	if err != nil {
		fmt.Println("Unable to decode into struct, ", err)
	}

	applyFlags(&cfg)
	resolvePaths(&cfg)
	config = &cfg
}

func applyFlags(cfg *Config) {
	if ForegroundFlag {
		cfg.Daemonize = false
	}
	if DebugLevelFlag >= 0 {
		cfg.DebugLevel = DebugLevelFlag
	}
	if NetNameFlag != "" {
		cfg.NetName = NetNameFlag
	}
	if PidFileFlag != "" {
		cfg.PidFile = PidFileFlag
	}
	if LogFileFlag != "" {
		cfg.Log.FileEnabled = true
		cfg.Log.FilePath = LogFileFlag
	}
}

// resolvePaths 把配置中的文件路径转换为绝对路径
func resolvePaths(cfg *Config) {
	cfg.PidFile = AbsPath(cfg.PidFile)
	cfg.Socket = AbsPath(cfg.Socket)
	cfg.ConfBase = AbsPath(cfg.ConfBase)
	cfg.Log.FilePath = AbsPath(cfg.Log.FilePath)
}

// LaunchDir 返回启动命令时的工作目录
func LaunchDir() string {
	if dir := os.Getenv(LaunchDirEnv); filepath.IsAbs(dir) {
		return dir
	}

	dir, err := os.Getwd()
	if err != nil {
		return "/"
	}

	return dir
}

// AbsPath 相对路径按 LaunchDir 解析，空字符串原样返回
func AbsPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(LaunchDir(), p)
}

// Identity 返回日志和 syslog 使用的进程标识
func (c *Config) Identity() string {
	if c.NetName == "" {
		return constants.DefaultDaemonName
	}

	return fmt.Sprintf("%s.%s", constants.DefaultDaemonName, c.NetName)
}
