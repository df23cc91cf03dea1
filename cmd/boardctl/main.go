package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

func main() {
	v := viper.New()
	if err := newRootCmd(v, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
