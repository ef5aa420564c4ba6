package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/logging"
	"github.com/c0deZ3R0/signsync/storage/sqlite"
)

type journalOptions struct {
	dsn    string
	since  string
	topic  string
	source string
	limit  int
}

// journal: list events recorded by a previous run.
func journalCmd(root *rootOptions) *cobra.Command {
	opts := &journalOptions{}
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List events recorded in a SQLite journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := opts.dsn
			if dsn == "" {
				dsn = root.cfg.Journal.DataSourceName
			}
			if dsn == "" || dsn == sqlite.MemoryDSN {
				return fmt.Errorf("an in-memory journal does not outlive its process. use --dsn")
			}
			since, err := sqlite.ParseSeq(opts.since)
			if err != nil {
				return err
			}

			jcfg := root.cfg.JournalOptions()
			jcfg.DataSourceName = dsn
			jcfg.Logger = logging.Default().WithComponent("journal").Logger
			j, err := sqlite.New(jcfg)
			if err != nil {
				return err
			}
			defer j.Close()

			var entries []sqlite.Entry
			switch {
			case opts.topic != "":
				entries, err = j.LoadByTopic(cmd.Context(), bus.Topic(opts.topic), since)
			case opts.source != "":
				entries, err = j.LoadBySource(cmd.Context(), opts.source, since)
			default:
				entries, _, err = j.Pull(cmd.Context(), since, opts.limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				data, err := bus.EncodePayload(e.Event.Payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%6d  %s  %-24s %-10s %s\n",
					e.Seq, e.Event.Timestamp.Format(time.RFC3339), e.Event.Topic, e.Event.SourceApp, data)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "no events")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "SQLite data source (default from config)")
	cmd.Flags().StringVar(&opts.since, "since", "0", "only events after this sequence number")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "only events on this topic")
	cmd.Flags().StringVar(&opts.source, "source", "", "only events emitted by this app")
	cmd.Flags().IntVar(&opts.limit, "limit", sqlite.DefaultPageSize, "maximum events to list")
	return cmd
}
