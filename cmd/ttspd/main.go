package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/ttsp.go/pkg/config"
	"github.com/robotalks/ttsp.go/pkg/daemon"
	fx "github.com/robotalks/ttsp.go/pkg/framework"
	"github.com/robotalks/ttsp.go/pkg/transport/periphspi"
)

func init() {
	config.SetupFlags()
	periphspi.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	d, err := daemon.New(config.MustNewConfig(), periphspi.Open)
	if err != nil {
		log.Fatalln(err)
	}
	defer d.Close()

	err = fx.NewRunner().HandleSignals().Go(d.Runnables()...).Wait()
	if err != nil {
		glog.Error(err)
	}
}
