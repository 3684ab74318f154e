package commands

import (
	"ankiboard/internal/courses"
	"ankiboard/internal/scrapers/ankiweb"
	"ankiboard/internal/stats"
	"ankiboard/pkg/serviceutil"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	decodeHex bool
	decodeRaw bool
)

func init() {
	decodeCmd.Flags().BoolVar(&decodeHex, "hex", false, "The file holds the body as hex.")
	decodeCmd.Flags().BoolVar(&decodeRaw, "raw", false, "Also print every wire field.")
	rootCmd.AddCommand(decodeCmd)
}

func readBody(path string, isHex bool) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !isHex {
		return body, nil
	}
	cleaned := strings.Join(strings.Fields(string(body)), "")
	return hex.DecodeString(cleaned)
}

const maxRawDepth = 4

// renderWire prints the fields of buf, length-delimited fields that parse as a message
// are printed nested. It stops at the first field it cannot parse.
func renderWire(w io.Writer, buf []byte, depth int) {
	indent := strings.Repeat("  ", depth)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			fmt.Fprintf(w, "%s<bad tag: %v>\n", indent, protowire.ParseError(n))
			return
		}
		buf = buf[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				fmt.Fprintf(w, "%s%d: <bad varint>\n", indent, num)
				return
			}
			fmt.Fprintf(w, "%s%d: %d\n", indent, num, v)
			buf = buf[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				fmt.Fprintf(w, "%s%d: <truncated, %d bytes left>\n", indent, num, len(buf))
				return
			}
			buf = buf[n:]
			if depth < maxRawDepth && isMessage(v) {
				fmt.Fprintf(w, "%s%d: {\n", indent, num)
				renderWire(w, v, depth+1)
				fmt.Fprintf(w, "%s}\n", indent)
			} else {
				fmt.Fprintf(w, "%s%d: %q\n", indent, num, v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				fmt.Fprintf(w, "%s%d: <bad %d field>\n", indent, num, typ)
				return
			}
			fmt.Fprintf(w, "%s%d: <%d bytes of wire type %d>\n", indent, num, n, typ)
			buf = buf[n:]
		}
	}
}

// isMessage reports whether v parses completely as a sequence of fields.
func isMessage(v []byte) bool {
	if len(v) == 0 {
		return false
	}
	for len(v) > 0 {
		num, typ, n := protowire.ConsumeField(v)
		if n < 0 || num == 0 || typ == protowire.StartGroupType || typ == protowire.EndGroupType {
			return false
		}
		v = v[n:]
	}
	return true
}

func runDecode(w io.Writer, body []byte, cfg Config, raw bool) {
	root, notes := ankiweb.DecodeDeckList(body)
	renderTree(w, root)

	result := stats.Aggregate(root, cfg.Courses, courses.NewRules(cfg.Keywords))
	renderMatched(w, "Courses", result)

	renderNotes(w, "Decoder", notes)
	renderNotes(w, "Matching", result.Notes)

	if raw {
		fmt.Fprintln(w, "Wire fields:")
		renderWire(w, body, 0)
	}
}

var decodeCmd = &cobra.Command{
	Use:   "decode <file> [--hex] [--raw]",
	Short: "Decodes a saved deck-list-info response, see fetch --dump.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body, err := readBody(args[0], decodeHex)
		if err != nil {
			serviceutil.Fatal("failed to read body", err)
		}
		cfg, err := readConfigOrDefaults(configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		runDecode(cmd.OutOrStdout(), body, cfg, decodeRaw)
	},
}
