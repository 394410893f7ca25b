package main

import (
	"vital-signs-monitor/internal/cli"
)

func main() {
	cli.Execute()
}
