package main

import (
	"fmt"
	"os"

	"github.com/marmos91/avatarsync/pkg/config"
)

func main() {
	schemaJSON, err := config.Schema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	outputFile := "config.schema.json"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", outputFile)
}
