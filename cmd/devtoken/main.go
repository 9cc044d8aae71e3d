package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"parley/assistant/internal/auth"
	"parley/assistant/internal/config"
)

func main() {
	device := flag.String("device", "default", "device id the token is bound to")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.Device.TokenSecret == "" {
		fmt.Fprintln(os.Stderr, "DEVICE_TOKEN_SECRET is not set")
		os.Exit(1)
	}

	exp := time.Now().Add(*ttl).Unix()
	tok, err := auth.GenerateDeviceToken(cfg.Device.TokenSecret, *device, exp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
