package main

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
)

func (c maincmd) list(ctx context.Context, start string, args []string) error {
	if err := c.needStore(); err != nil {
		return err
	}

	startCID := cid.Undef
	if start != "" {
		var err error
		startCID, err = parseCID(start)
		if err != nil {
			return err
		}
	}

	return c.s.ListCIDs(ctx, startCID, func(id cid.Cid) error {
		_, err := fmt.Println(id)
		return err
	})
}
