package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) remind() error {
	sum, err := cli.reminders.RunOnce(context.Background())
	if err != nil {
		return err
	}
	if sum.Skipped {
		fmt.Println("another reminder pass is running")
		return nil
	}
	fmt.Printf("reminders: %d claimed, %d sent, %d failed\n", sum.Claimed, sum.Sent, sum.Failed)
	return nil
}
