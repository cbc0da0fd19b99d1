package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/mjl-/bstore"
	"github.com/spf13/cobra"

	"github.com/mjl-/mimefeed/message"
	"github.com/mjl-/mimefeed/metrics"
	"github.com/mjl-/mimefeed/mlog"
)

var (
	mboxIndexPath string
	mboxPedantic  bool
)

func init() {
	mboxCmd.Flags().StringVar(&mboxIndexPath, "index", "", "path of message index database to write, e.g. index.db")
	mboxCmd.Flags().BoolVar(&mboxPedantic, "pedantic", false, "strict parsing, reject tolerated deviations")
}

// MsgRecord is a summary of one parsed message, stored in the index database.
type MsgRecord struct {
	ID          int64
	File        string `bstore:"nonzero,index"`
	Seq         int    // Position in the mbox file, 1-based.
	From        string
	Subject     string
	MessageID   string    `bstore:"index"` // Without <>, empty if absent or unparseable.
	Date        time.Time // Zero if absent or unparseable.
	References  []string  // Referenced message-ids, for threading.
	ContentType string
	Parts       int    // Total parts in the tree, including the root.
	ParseError  string // Empty for fully parsed messages.
}

var mboxCmd = &cobra.Command{
	Use:   "mbox <file.mbox>",
	Short: "Parse all messages in an mbox archive, print a summary per message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := mlog.New("mbox")

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open mbox: %w", err)
		}
		defer f.Close()

		var db *bstore.DB
		ctx := context.Background()
		if mboxIndexPath != "" {
			db, err = bstore.Open(ctx, mboxIndexPath, &bstore.Options{Timeout: 5 * time.Second, Perm: 0660}, MsgRecord{})
			if err != nil {
				return fmt.Errorf("open index database: %w", err)
			}
			defer db.Close()
		}

		cfg := message.Config{Pedantic: mboxPedantic}
		mr := mbox.NewReader(f)
		seq := 0
		nok, nerr := 0, 0
		for {
			r, err := mr.NextMessage()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("reading next mbox message: %w", err)
			}
			seq++

			msg, perr := message.Parse(cfg, r)
			rec := MsgRecord{
				File:        args[0],
				Seq:         seq,
				From:        msg.Headers.Get("From"),
				Subject:     msg.Headers.Get("Subject"),
				References:  msg.Headers.ReferencedIDs(),
				ContentType: msg.Headers.Get("Content-Type"),
				Parts:       countParts(msg),
			}
			if id, err := msg.Headers.MessageID(); err == nil {
				rec.MessageID = id
			}
			if d, err := msg.Headers.Date(); err == nil {
				rec.Date = d
			}
			if perr != nil {
				nerr++
				rec.ParseError = perr.Error()
				metrics.MessageInc("error")
				metrics.ParseErrorInc(errorKind(perr))
				log.Infox("parsing message", perr, mlog.Field("seq", seq))
			} else {
				nok++
				metrics.MessageInc("ok")
				countDecoded(msg)
			}
			if db != nil {
				if err := db.Insert(ctx, &rec); err != nil {
					return fmt.Errorf("inserting message record: %w", err)
				}
			}
			fmt.Printf("%d\t%s\t%s\t%d part(s)\t%s\n", seq, rec.From, rec.Subject, rec.Parts, rec.ParseError)
		}
		fmt.Printf("%d message(s), %d ok, %d with parse errors\n", seq, nok, nerr)
		return nil
	},
}

func countParts(p *message.Part) int {
	n := 1
	for _, sp := range p.Parts {
		n += countParts(sp)
	}
	return n
}
