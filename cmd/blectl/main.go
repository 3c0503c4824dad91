// blectl is a small operational CLI for inspecting a running msgserver/
// msgclient process over its control socket, adapted in structure from
// the teacher's ctl/ctl.go (same urfave/cli app shape, same
// connect-then-issue-one-request pattern).
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli"

	"krypt.co/blemsg/control"
)

const defaultSocketPath = "/tmp/blemsg-ctl.sock"

func dial(c *cli.Context) (*control.Client, error) {
	conn, err := control.Dial(c.GlobalString("socket"))
	if err != nil {
		return nil, err
	}
	return control.NewClient(conn), nil
}

func connectionStsCommand(c *cli.Context) error {
	client, err := dial(c)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	sts, err := client.ConnectionSts()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(sts)
	return nil
}

func transactionStsCommand(c *cli.Context) error {
	client, err := dial(c)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	sts, err := client.TransactionSts()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(sts)
	return nil
}

func isPairedCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		log.Fatal("usage: blectl is-paired <device-id-hex>")
	}
	var deviceID uint64
	if _, err := fmt.Sscanf(c.Args().Get(0), "%x", &deviceID); err != nil {
		log.Fatal(err)
	}
	client, err := dial(c)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	paired, err := client.IsPaired(deviceID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(paired)
	return nil
}

func pingCommand(c *cli.Context) error {
	client, err := dial(c)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	if err := client.TxPing(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("ok")
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "blectl"
	app.Usage = "inspect a running blemsg host process"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket",
			Value: defaultSocketPath,
			Usage: "path to the control socket",
		},
	}
	app.Commands = []cli.Command{
		{Name: "connection-sts", Aliases: []string{"conn"}, Action: connectionStsCommand},
		{Name: "transaction-sts", Aliases: []string{"trn"}, Action: transactionStsCommand},
		{Name: "is-paired", Action: isPairedCommand},
		{Name: "ping", Action: pingCommand},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
