// Command geoflow runs and validates geoflow workflow definitions.
package main

import (
	"fmt"
	"os"

	_ "github.com/geoflow/pipeline/internal/steps/bundle"
	_ "github.com/geoflow/pipeline/internal/steps/fetch"
	_ "github.com/geoflow/pipeline/internal/steps/modify"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
