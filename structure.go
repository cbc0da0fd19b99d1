package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mjl-/mimefeed/message"
	"github.com/mjl-/mimefeed/metrics"
)

var (
	structurePedantic bool
	structureBodies   bool
)

func init() {
	structureCmd.Flags().BoolVar(&structurePedantic, "pedantic", false, "strict parsing, reject tolerated deviations")
	structureCmd.Flags().BoolVar(&structureBodies, "bodies", false, "include decoded body bytes in the output")
}

var structureCmd = &cobra.Command{
	Use:   "structure [file]",
	Short: "Parse a raw message and print its decoded part tree as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open message: %w", err)
			}
			defer f.Close()
			r = f
		}

		cfg := message.Config{Pedantic: structurePedantic}
		msg, err := message.Parse(cfg, r)
		if err != nil {
			metrics.MessageInc("error")
			metrics.ParseErrorInc(errorKind(err))
			// Still print what was parsed, fully parsed parts remain usable.
			printStructure(msg)
			return fmt.Errorf("parsing message: %w", err)
		}
		metrics.MessageInc("ok")
		countDecoded(msg)
		printStructure(msg)
		return nil
	},
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, message.ErrTruncatedHeaders):
		return "truncatedheaders"
	case errors.Is(err, message.ErrOrphanContinuation):
		return "orphancontinuation"
	case errors.Is(err, message.ErrMissingBoundaryParam):
		return "missingboundary"
	case errors.Is(err, message.ErrUnterminatedMultipart):
		return "unterminatedmultipart"
	case errors.Is(err, message.ErrBadContentType):
		return "badcontenttype"
	}
	return "other"
}

func countDecoded(p *message.Part) {
	metrics.DecodedAdd(p.Encoding.String(), len(p.Data))
	for _, sp := range p.Parts {
		countDecoded(sp)
	}
}

// partView is the JSON shape for a parsed part: like message.Part, with
// errors as strings and bodies optional.
type partView struct {
	Headers      []headerView      `json:",omitempty"`
	MediaType    string            `json:",omitempty"`
	MediaSubType string            `json:",omitempty"`
	Params       map[string]string `json:",omitempty"`
	Encoding     string
	Type         string
	Size         int        `json:",omitempty"`
	Data         []byte     `json:",omitempty"`
	BodyErr      string     `json:",omitempty"`
	Err          string     `json:",omitempty"`
	Complete     bool
	Parts        []partView `json:",omitempty"`
}

type headerView struct {
	Name     string
	Value    string
	Charsets []string `json:",omitempty"`
}

func viewPartBodies(p *message.Part, bodies bool) partView {
	v := partView{
		MediaType:    p.MediaType,
		MediaSubType: p.MediaSubType,
		Params:       p.ContentTypeParams,
		Encoding:     p.Encoding.String(),
		Type:         p.Type.String(),
		Size:         len(p.Data),
		Complete:     p.Complete,
	}
	for _, f := range p.Headers.Fields {
		v.Headers = append(v.Headers, headerView{f.Name, f.Value, f.Charsets})
	}
	if bodies {
		v.Data = p.Data
	}
	if p.BodyErr != nil {
		v.BodyErr = p.BodyErr.Error()
	}
	if p.Err != nil {
		v.Err = p.Err.Error()
	}
	for _, sp := range p.Parts {
		v.Parts = append(v.Parts, viewPartBodies(sp, bodies))
	}
	return v
}

func printStructure(msg *message.Message) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "\t")
	if err := enc.Encode(viewPartBodies(msg, structureBodies)); err != nil {
		fmt.Fprintln(os.Stderr, "writing json:", err)
	}
}
