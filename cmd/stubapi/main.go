package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"commerce-admin-session/internal/interface/stub"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	accessTTL := flag.Duration("access-ttl", 30*time.Minute, "access token lifetime")
	flag.Parse()

	secret := os.Getenv("STUB_JWT_SECRET")
	srv := stub.NewServer(stub.Config{
		Secret:    secret,
		AccessTTL: *accessTTL,
	})

	log.Printf("starting stub backend on %s (access ttl %s)", *addr, *accessTTL)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
