package main

import (
	"log"

	"github.com/collabhub/api/app"
)

func main() {
	if err := app.SetupAndRunServer(); err != nil {
		log.Fatal(err)
	}
}
