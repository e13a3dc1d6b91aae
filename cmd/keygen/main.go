package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/guided-traffic/body-consumer/internal/storage"
)

func main() {
	out := flag.String("out", "", "write the keyset to this file instead of stdout")
	flag.Parse()

	if err := run(*out, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating keyset: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, stdout io.Writer) error {
	if path == "" {
		return storage.WriteNewKeyset(stdout)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600) // #nosec G304 - path is the -out flag
	if err != nil {
		return err
	}
	if err := storage.WriteNewKeyset(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Generated AES256-GCM keyset: %s\n", path)
	fmt.Fprintf(stdout, "\nYou can use this keyset in your configuration:\n")
	fmt.Fprintf(stdout, "blob_store:\n  keyset_file: \"%s\"\n", path)
	fmt.Fprintf(stdout, "\nOr set it as an environment variable:\n")
	fmt.Fprintf(stdout, "export BODYC_BLOB_STORE_KEYSET_FILE=\"%s\"\n", path)
	return nil
}
