// Command cpdlc-client is a minimal terminal reference client for the
// CPDLC router daemon: it logs on, lets an operator send a handful of
// catalog message types, and prints thread status as replies arrive.
// It exists to give pkg/cpdlc/transport and pkg/cpdlc/thread a runnable
// exerciser; it is not part of the wire protocol or thread engine
// themselves.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/marmos91/cpdlcd/internal/cli/prompt"
	"github.com/marmos91/cpdlcd/internal/logger"
	"github.com/marmos91/cpdlcd/pkg/cpdlc"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/catalog"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/thread"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/transport"
)

var quickMessages = []prompt.SelectOption{
	{Label: "DM0 WILCO", Value: "DM0", Description: "Accept an uplink instruction"},
	{Label: "DM1 UNABLE", Value: "DM1", Description: "Reject an uplink instruction"},
	{Label: "DM6 REQUEST CLIMB", Value: "DM6", Description: "Downlink request, reply expected"},
	{Label: "UM20 CLIMB", Value: "UM20", Description: "Uplink reply-required instruction"},
}

func main() {
	addr := pflag.StringP("addr", "a", "localhost:17622", "router daemon address")
	callsign := pflag.StringP("callsign", "c", "", "this station's callsign")
	peer := pflag.StringP("peer", "p", "", "default TO callsign for sent messages")
	insecure := pflag.Bool("insecure", false, "skip TLS certificate verification")
	pflag.Parse()

	if err := logger.Init(logger.Config{Level: "INFO", Format: "text"}); err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}

	from := *callsign
	if from == "" {
		var err error
		from, err = prompt.InputRequired("Your callsign")
		if err != nil {
			exitOnAbort(err)
		}
	}

	to := *peer
	if to == "" {
		var err error
		to, err = prompt.Input("Default peer callsign", "")
		if err != nil {
			exitOnAbort(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	tlsCfg := &tls.Config{InsecureSkipVerify: *insecure}
	client, err := transport.Dial(ctx, *addr, tlsCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer client.Close()

	engine := thread.New(client)
	engine.SetUpdateCallback(func(affected []uint64) {
		for _, id := range affected {
			printThread(engine, id)
		}
	})

	if _, err := client.Logon(ctx, from, to); err != nil {
		fmt.Fprintln(os.Stderr, "logon:", err)
		os.Exit(1)
	}
	fmt.Printf("Logged on as %s (peer %s)\n", from, to)

	runMenu(ctx, engine, &to)
}

func runMenu(ctx context.Context, engine *thread.Engine, to *string) {
	for {
		choice, err := prompt.SelectString("Action", []string{"Send message", "List threads", "Quit"})
		if err != nil {
			exitOnAbort(err)
		}

		switch choice {
		case "Send message":
			sendQuickMessage(ctx, engine, *to)
		case "List threads":
			for _, id := range engine.GetThreadIDs(false) {
				printThread(engine, id)
			}
		case "Quit":
			return
		}
	}
}

func sendQuickMessage(ctx context.Context, engine *thread.Engine, to string) {
	choice, err := prompt.Select("Message type", quickMessages)
	if err != nil {
		exitOnAbort(err)
	}

	msgType, dir := resolveQuickMessage(choice)
	msg := &cpdlc.Message{
		Direction: dir,
		To:        to,
		Segments:  []cpdlc.Segment{{MsgType: msgType}},
	}

	id, err := engine.Send(ctx, msg, thread.NewThreadID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "send:", err)
		return
	}
	fmt.Printf("sent on thread %d\n", id)
}

func resolveQuickMessage(value string) (int, cpdlc.Direction) {
	switch value {
	case "DM0":
		return catalog.DM0WILCO, cpdlc.Downlink
	case "DM1":
		return catalog.DM1UNABLE, cpdlc.Downlink
	case "DM6":
		return catalog.DM(6), cpdlc.Downlink
	case "UM20":
		return catalog.UM(20), cpdlc.Uplink
	default:
		return catalog.UM159ERROR, cpdlc.Uplink
	}
}

func printThread(engine *thread.Engine, id uint64) {
	status, dirty, ok := engine.GetThreadStatus(id)
	if !ok {
		return
	}
	marker := " "
	if dirty {
		marker = "*"
	}
	fmt.Printf("%s thread %d: %s (%d messages)\n", marker, id, status, engine.GetThreadMessageCount(id))
	engine.MarkSeen(id)
}

func exitOnAbort(err error) {
	if prompt.IsAborted(err) {
		fmt.Println("aborted")
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, "prompt:", err)
	os.Exit(1)
}
