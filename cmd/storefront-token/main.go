// Package main issues development bearer tokens for the storefront API.
package main

import (
	"os"
	"time"

	"github.com/wholesale-storefront/storefront/internal/tools/devtoken"
)

func main() {
	os.Exit(devtoken.Main(os.Args[1:], os.Stdout, os.Stderr, time.Now))
}
