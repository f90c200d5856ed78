package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/carekeeper/internal/config"
	"github.com/dmitrijs2005/carekeeper/internal/flagx"
)

func main() {
	args := os.Args[1:]
	cfg := config.LoadConfig(args)

	c := &cli{cfg: cfg, open: openApp}
	root := newRootCmd(c)
	root.SetArgs(flagx.StripArgs(args, config.Flags()))

	err := root.ExecuteContext(context.Background())
	if cerr := c.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
