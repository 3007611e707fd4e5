package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"hive/pkg/channel"
	"hive/pkg/gateway"
	"hive/pkg/hive"

	"github.com/spf13/cobra"
)

// sendOptions holds flag values for the send command.
type sendOptions struct {
	from     string
	msgType  string
	priority string
	subject  string
	taskID   string
	dryRun   bool
	queue    bool // skip terminal delivery, leave the message on the bus
}

// newSendCmd creates the "hive send" subcommand.
func newSendCmd() *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send <target> <text>...",
		Short: "Send an instruction or message over the coordination channel",
		Long: "Operator text goes through the conversation gateway: it is classified,\n" +
			"recorded on the message bus, may auto-create a task, and is forwarded\n" +
			"to each resolved tmux window. Target \"all\" broadcasts to every agent.\n" +
			"--from skips the gateway and records a direct bee-to-bee message.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return runSend(cmd.Context(), cmd.OutOrStdout(), args[0], text, opts)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "", "send as this bee instead of through the gateway")
	cmd.Flags().StringVar(&opts.msgType, "type", "conversation", "message type for --from sends")
	cmd.Flags().StringVar(&opts.priority, "priority", "normal", "message priority: low, normal, high, urgent")
	cmd.Flags().StringVar(&opts.subject, "subject", "", "message subject")
	cmd.Flags().StringVar(&opts.taskID, "task", "", "task this message concerns")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "classify the text and exit without recording")
	cmd.Flags().BoolVar(&opts.queue, "queue", false, "record on the bus without terminal delivery")

	return cmd
}

func runSend(ctx context.Context, w io.Writer, target, text string, opts sendOptions) error {
	if opts.dryRun {
		fmt.Fprintf(w, "type      %s\n", gateway.Classify(text))
		fmt.Fprintf(w, "target    %s\n", target)
		return nil
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ch := newChannel(cfg, st)

	if opts.from != "" {
		return sendDirect(ctx, w, st, ch, cfg.Window(target), cfg.DeliveryTimeout, hive.Envelope{
			From:             opts.from,
			To:               target,
			Type:             hive.MessageType(opts.msgType),
			Subject:          opts.subject,
			Content:          text,
			Priority:         hive.MsgPriority(opts.priority),
			TaskID:           opts.taskID,
			ChannelCompliant: true,
		}, opts.queue)
	}

	gw := gateway.New(cfg, st, st, st, ch)
	res, err := gw.Intercept(ctx, text, target)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "message   %d (%s) conversation %s\n", res.Message.ID, res.Type, res.Message.ConversationID)
	if res.Task != nil {
		fmt.Fprintf(w, "task      %s  %s\n", res.Task.ID, res.Task.Title)
	}
	fmt.Fprintf(w, "delivered %d target(s)\n", res.Delivered)
	return nil
}

// sendDirect records one bee-to-bee message and forwards it to the target
// window. Delivery failure is reported but does not unwind the send: the
// message is already on the bus and the inbox poll will surface it.
func sendDirect(ctx context.Context, w io.Writer, bus hive.MessageBus, ch channel.Channel, window string, timeout time.Duration, env hive.Envelope, queueOnly bool) error {
	msg, err := bus.Enqueue(ctx, env)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "message   %d queued %s -> %s\n", msg.ID, msg.From, msg.To)

	if queueOnly {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ch.Deliver(dctx, window, channel.RenderMessage(msg)); err != nil {
		fmt.Fprintf(w, "delivery to %s failed: %v\n", window, err)
		return nil
	}
	fmt.Fprintf(w, "delivered %s\n", window)
	return nil
}
