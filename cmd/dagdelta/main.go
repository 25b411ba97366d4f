// Command dagdelta builds Merkle DAGs of files,
// computes deltas between file versions,
// and applies those deltas to reconstruct new versions from old ones.
//
// Usage:
//
//	dagdelta [-config FILE] SUBCOMMAND [ARGS]
//
// Run a subcommand with -h for its flags.
// Configuration comes from the config file (default dagdelta.json, optional),
// from DAGDELTA_-prefixed environment variables,
// and from built-in defaults.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bobg/subcmd"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/archive"
	"github.com/bobg/dagdelta/chunker"
	"github.com/bobg/dagdelta/filetree"
)

type maincmd struct {
	sizes  chunker.Options
	logger *zap.Logger
	s      dagdelta.Store // nil if no store is configured
}

func main() {
	config := flag.String("config", "dagdelta.json", "path to config file")
	flag.Parse()

	v, err := loadConfig(*config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Loading config: %s\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Creating logger: %s\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()

	s, err := storeFromConfig(ctx, v, logger)
	if err != nil {
		logger.Fatal("creating store", zap.Error(err))
	}

	c := maincmd{
		sizes:  sizesFromConfig(v),
		logger: logger,
		s:      s,
	}
	if err := c.sizes.Validate(); err != nil {
		logger.Fatal("invalid chunk sizes", zap.Error(err))
	}

	if err := subcmd.Run(ctx, c, flag.Args()); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"apply", c.apply, subcmd.Params(
			"o", subcmd.String, "", "output file (default stdout)",
		),
		"decode-inline", c.decodeInline, nil,
		"delta", c.delta, subcmd.Params(
			"o", subcmd.String, "", "output file (default stdout; a .zst suffix compresses)",
		),
		"export", c.export, subcmd.Params(
			"o", subcmd.String, "", "output file (default stdout; a .zst suffix compresses)",
		),
		"get", c.get, subcmd.Params(
			"o", subcmd.String, "", "output file (default stdout)",
		),
		"ingest", c.ingest, subcmd.Params(
			"j", subcmd.Int, 8, "maximum concurrent writes",
		),
		"inline", c.inline, nil,
		"list", c.list, subcmd.Params(
			"start", subcmd.String, "", "start after this CID",
		),
		"stat", c.stat, nil,
		"sync", c.sync, nil,
		"tree", c.tree, subcmd.Params(
			"root", subcmd.String, "", "CID of a tree in the configured store (instead of a file)",
		),
	)
}

// treeOpts produces the options for building a tree with the configured sizes,
// fetching missing blocks from the configured store if there is one.
func (c maincmd) treeOpts(extra ...filetree.Option) []filetree.Option {
	opts := []filetree.Option{filetree.WithSizes(c.sizes)}
	if c.s != nil {
		opts = append(opts, filetree.WithFetcher(c.s))
	}
	return append(opts, extra...)
}

func (c maincmd) buildTree(ctx context.Context, filename string, extra ...filetree.Option) (*filetree.Tree, error) {
	t, err := filetree.FromFile(ctx, filename, c.treeOpts(extra...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "building tree for %s", filename)
	}
	c.logger.Debug("built tree",
		zap.String("file", filename),
		zap.Stringer("root", t.Root()),
		zap.Uint64("size", t.Size()),
		zap.Int("blocks", t.Len()),
	)
	return t, nil
}

func (c maincmd) needStore() error {
	if c.s == nil {
		return errors.New(`no store configured (set "store" in the config file)`)
	}
	return nil
}

// writeArchive writes an archive to the named file,
// or to stdout if the name is empty or "-".
// A name ending in .zst gets the compressed form.
func writeArchive(filename string, buf []byte) error {
	if strings.HasSuffix(filename, ".zst") {
		buf = archive.Compress(buf)
	}
	return writeOutput(filename, buf)
}

func writeOutput(filename string, buf []byte) error {
	if filename == "" || filename == "-" {
		_, err := os.Stdout.Write(buf)
		return errors.Wrap(err, "writing to stdout")
	}
	return errors.Wrapf(os.WriteFile(filename, buf, 0644), "writing %s", filename)
}

func readArchive(filename string) (*archive.Archive, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filename)
	}
	a, err := archive.Open(buf)
	return a, errors.Wrapf(err, "parsing archive %s", filename)
}

func parseCID(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	return c, errors.Wrapf(err, "decoding CID %s", s)
}
