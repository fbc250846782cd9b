package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meshline/meshcore/internal/identity"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)

	switch cmd {
	case "identity":
		cmdIdentity()
	case "version":
		fmt.Printf("meshctl %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: meshctl <command> [options]

Commands:
  identity    Show or generate the local node identity
  version     Show version
  help        Show this help

For contact, relay, queue and message operations against a running
node, use meshadmin instead — those require the node's admin API.`)
}

func cmdIdentity() {
	fs := flag.NewFlagSet("identity", flag.ExitOnError)
	path := fs.String("identity", "./meshcore-identity.key", "identity key path")
	generate := fs.Bool("generate", false, "generate new identity, overwriting any existing file")
	fs.Parse(os.Args[1:])

	if *generate {
		id, err := identity.Generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := os.MkdirAll(filepath.Dir(*path), 0700); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*path, id.PrivateKey[:], 0600); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Address:    %s\n", id.Address)
		fmt.Printf("Public Key: %s\n", id.PublicKeyHex())
		return
	}

	id, err := identity.LoadOrGenerate(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Address:    %s\n", id.Address)
	fmt.Printf("Public Key: %s\n", id.PublicKeyHex())
}
