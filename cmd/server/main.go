package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rihuaaaaa/laura-db/pkg/engine"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "Data directory for database storage")
	bufferSize := flag.Int("buffer-size", 1000, "Buffer pool size in pages (1 page = 4KB)")
	numInstances := flag.Int("instances", 1, "Number of sharded buffer pool instances for the data pool")
	httpAddr := flag.String("http-addr", ":8090", "Admin REST/WebSocket listen address")
	enableGraphQL := flag.Bool("graphql", false, "Mount the read-only diagnostics GraphQL schema at /graphql")
	enableCompression := flag.Bool("compress", false, "Compress pages at the disk manager boundary")
	enableEncryption := flag.Bool("encrypt", false, "Encrypt pages at the disk manager boundary")
	encryptionPass := flag.String("encryption-passphrase", "", "Passphrase used to derive the page encryption key")
	enableWAL := flag.Bool("wal", false, "Attach a write-ahead log to the data and index buffer pools")
	useMmap := flag.Bool("mmap", false, "Back page storage with a memory-mapped file instead of pread/pwrite")
	flag.Parse()

	config := engine.DefaultConfig()
	config.DataDir = *dataDir
	config.BufferPoolSize = *bufferSize
	config.NumInstances = *numInstances
	config.HTTPAddr = *httpAddr
	config.EnableGraphQL = *enableGraphQL
	config.EnableCompression = *enableCompression
	config.EnableEncryption = *enableEncryption
	config.EncryptionPass = *encryptionPass
	config.EnableWAL = *enableWAL
	config.UseMmapStorage = *useMmap

	eng, err := engine.Open(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	admin := engine.NewAdminServer(eng, config.HTTPAddr)
	if config.EnableGraphQL {
		gqlHandler, err := engine.NewGraphQLHandler(eng)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build GraphQL schema: %v\n", err)
			os.Exit(1)
		}
		admin.Router().Post("/graphql", gqlHandler.ServeHTTP)
	}

	fmt.Printf("laura-db storage engine listening on %s\n", config.HTTPAddr)
	fmt.Printf("data directory: %s (buffer pool: %d pages across %d instance(s))\n",
		config.DataDir, config.BufferPoolSize, config.NumInstances)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := admin.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
