// feed 行情服务：模拟或轮询价格写入缓存，通过 SSE / WebSocket 推送，可选镜像到 Redis。
//
// 用法：
//
//	go run ./cmd/feed -config configs/feed.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"market-feed-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径，留空使用默认配置")
	envFile := flag.String("env", ".env", "环境变量文件，不存在时忽略")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("加载 %s 失败: %v", *envFile, err)
	}

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	// 非 systemd 环境下 NOTIFY_SOCKET 为空，SdNotify 直接返回 false
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify 失败: %v", err)
	}

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := c.Stop(); err != nil {
		log.Printf("停止时出现错误: %v", err)
		os.Exit(1)
	}
}
