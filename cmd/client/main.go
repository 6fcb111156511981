package main

import (
	"chat_relay/internal/service/app"

	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// os.Args[0] is the program name, os.Args[1:] are arguments
	if len(os.Args) < 4 {
		log.Fatal("Usage: client <ws-url> <token> <recipient-id>")
	}

	serverURL := os.Args[1]
	token := os.Args[2]
	toID := os.Args[3]

	a := app.NewApp()
	go a.Run(serverURL, token, toID)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done

	a.Stop()
}
