package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/mfrhal/cmd/mfr-writeimage/app"
)

func main() {
	app.NewApp().Run()
}
