// Command mimefeed decodes RFC 5322/MIME messages: it parses header blocks
// and (nested) multipart bodies from a raw message stream, without ever
// buffering a whole message in memory.
//
// The parsing itself lives in the message and chunk packages, this command is
// a thin shell: print a message's decoded structure, walk mbox archives, or
// serve parsing over http.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mjl-/mimefeed/mlog"
)

var loglevel string

func main() {
	rootCmd := &cobra.Command{
		Use:           "mimefeed",
		Short:         "Decode RFC 5322/MIME messages incrementally",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, ok := mlog.Levels[loglevel]
			if !ok {
				level = mlog.LevelError
			}
			mlog.SetConfig(map[string]mlog.Level{"": level})
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&loglevel, "loglevel", "error", "log level: error, info, debug")

	rootCmd.AddCommand(structureCmd)
	rootCmd.AddCommand(mboxCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(describeconfCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
