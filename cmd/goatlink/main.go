package main

import (
	"log"

	"github.com/goatkit/goatlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
