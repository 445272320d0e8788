// Package utils
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"meshd/pkg/utils/constants"
)

// Version 构建时通过 -ldflags "-X meshd/pkg/utils.Version=..." 注入
var Version = "dev"

var RuntimeModuleName = filepath.Base(os.Args[0])

func init() {
	if Version != "dev" {
		return
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}

// InitEnv 创建运行目录
func InitEnv() {
	if err := os.MkdirAll(constants.MeshdHome, 0750); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "WARN: cannot create %s: %v\n", constants.MeshdHome, err)
	}
}

// CheckPerm 检查目录是否可写
//
// 参数：
//
//	dir: 需要写入锁文件和 socket 的目录
//
// 返回：
//
//	error: 目录不存在或不可写时返回错误
func CheckPerm(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	f, err := os.CreateTemp(dir, ".perm-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}
