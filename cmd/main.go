package main

import (
	"log"
	"os"

	"quizroom-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("quizroom: %v", err)
		os.Exit(1)
	}
}
