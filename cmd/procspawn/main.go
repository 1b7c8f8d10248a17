package main

import (
	"github.com/Paintersrp/procspawn/internal/cli"
	"github.com/Paintersrp/procspawn/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
