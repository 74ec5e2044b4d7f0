package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/Lllllllleong/docpipeline/internal/config"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/services"
)

var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output file (defaults to a name derived from the input)",
	}
	passwordFlag = &cli.StringFlag{
		Name:    "password",
		Aliases: []string{"p"},
		Usage:   "Password for encrypted inputs",
		EnvVars: []string{"DOCPIPE_PASSWORD"},
	}
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show page count and lock state of documents",
		ArgsUsage: "<file...>",
		Flags:     []cli.Flag{passwordFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("at least one file required", 1)
			}
			a, err := newApp(c)
			if err != nil {
				return err
			}
			s := a.session("inspect")
			defer s.Close()

			locked := color.New(color.FgYellow)
			failed := color.New(color.FgRed)
			for _, path := range c.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				doc, err := s.Add(c.Context, filepath.Base(path), data)
				if doc == nil {
					return err
				}
				if doc.Status == models.StatusLocked && c.String("password") != "" {
					if _, err := s.Unlock(c.Context, doc, c.String("password")); err != nil {
						return err
					}
				}
				switch doc.Status {
				case models.StatusLocked:
					locked.Printf("%s: locked\n", path)
				case models.StatusError:
					failed.Printf("%s: unreadable\n", path)
				default:
					fmt.Printf("%s: %d pages\n", path, doc.PageCount)
				}
			}
			return nil
		},
	}
}

func mergeCommand() *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Concatenate documents in order",
		ArgsUsage: "<file...>",
		Flags: []cli.Flag{
			outputFlag,
			passwordFlag,
			&cli.IntSliceFlag{
				Name:  "rotate",
				Usage: "Clockwise rotation per input (0, 90, 180, 270), in input order",
			},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			s := a.session("merge")
			defer s.Close()

			docs, err := a.load(c.Context, s, c.Args().Slice(), c.String("password"))
			if err != nil {
				return err
			}
			opts := services.MergeOptions{Rotations: c.IntSlice("rotate")}
			if out := c.String("output"); out != "" {
				opts.OutputName = filepath.Base(out)
			}
			h, err := a.toolkit.Merge(c.Context, s, docs, opts, progressBar("merge"))
			if err != nil {
				return err
			}
			return a.save(h, c.String("output"))
		},
	}
}

func splitCommand() *cli.Command {
	return &cli.Command{
		Name:      "split",
		Usage:     "Extract pages into one document or one document per page",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			outputFlag,
			passwordFlag,
			&cli.StringFlag{
				Name:     "pages",
				Usage:    "Page selection, e.g. 2,4,6 or 1-3,8",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "individual",
				Usage: "Write one document per page, packaged as a zip",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one file required", 1)
			}
			a, err := newApp(c)
			if err != nil {
				return err
			}
			s := a.session("split")
			defer s.Close()

			docs, err := a.load(c.Context, s, c.Args().Slice(), c.String("password"))
			if err != nil {
				return err
			}
			pages, err := services.ParsePages(c.String("pages"), docs[0].PageCount)
			if err != nil {
				return err
			}
			mode := models.SplitSingle
			if c.Bool("individual") {
				mode = models.SplitIndividual
			}
			h, err := a.toolkit.Split(c.Context, s, docs[0], pages, mode, progressBar("split"))
			if err != nil {
				return err
			}
			return a.save(h, c.String("output"))
		},
	}
}

func compressCommand() *cli.Command {
	return &cli.Command{
		Name:      "compress",
		Usage:     "Re-encode pages as JPEG images; several inputs produce a zip",
		ArgsUsage: "<file...>",
		Flags: []cli.Flag{
			outputFlag,
			passwordFlag,
			&cli.StringFlag{
				Name:  "tier",
				Value: string(models.TierStandard),
				Usage: "Quality tier: high, standard or smallest",
			},
		},
		Action: func(c *cli.Context) error {
			tier, err := models.ParseTier(c.String("tier"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			a, err := newApp(c)
			if err != nil {
				return err
			}
			s := a.session("compress")
			defer s.Close()

			docs, err := a.load(c.Context, s, c.Args().Slice(), c.String("password"))
			if err != nil {
				return err
			}
			h, err := a.toolkit.Compress(c.Context, s, docs, tier, progressBar("compress"))
			if err != nil {
				return err
			}
			return a.save(h, c.String("output"))
		},
	}
}

func optimizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "optimize",
		Usage:     "Rewrite a document losslessly, dropping redundant objects",
		ArgsUsage: "<file>",
		Flags:     []cli.Flag{outputFlag, passwordFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one file required", 1)
			}
			a, err := newApp(c)
			if err != nil {
				return err
			}
			s := a.session("optimize")
			defer s.Close()

			docs, err := a.load(c.Context, s, c.Args().Slice(), c.String("password"))
			if err != nil {
				return err
			}
			h, err := a.toolkit.Optimize(c.Context, s, docs[0])
			if err != nil {
				return err
			}
			return a.save(h, c.String("output"))
		},
	}
}

func protectCommand() *cli.Command {
	return &cli.Command{
		Name:      "protect",
		Usage:     "Encrypt a document with AES-256",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			outputFlag,
			passwordFlag,
			&cli.StringFlag{
				Name:     "passphrase",
				Usage:    "New passphrase for the output",
				EnvVars:  []string{"DOCPIPE_PASSPHRASE"},
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one file required", 1)
			}
			a, err := newApp(c)
			if err != nil {
				return err
			}
			s := a.session("protect")
			defer s.Close()

			docs, err := a.load(c.Context, s, c.Args().Slice(), c.String("password"))
			if err != nil {
				return err
			}
			h, err := a.toolkit.Protect(c.Context, s, docs[0], c.String("passphrase"))
			if err != nil {
				return err
			}
			return a.save(h, c.String("output"))
		},
	}
}

func ocrCommand() *cli.Command {
	return &cli.Command{
		Name:      "ocr",
		Usage:     "Recognize the text of every page",
		ArgsUsage: "<file>",
		Flags:     []cli.Flag{outputFlag, passwordFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one file required", 1)
			}
			a, err := newApp(c)
			if err != nil {
				return err
			}
			s := a.session("ocr")
			defer s.Close()

			docs, err := a.load(c.Context, s, c.Args().Slice(), c.String("password"))
			if err != nil {
				return err
			}
			h, err := a.toolkit.OCR(c.Context, s, docs[0], progressBar("ocr"))
			if err != nil {
				return err
			}
			return a.save(h, c.String("output"))
		},
	}
}

func chainCommand() *cli.Command {
	return &cli.Command{
		Name:      "chain",
		Usage:     "Run a YAML list of tools, feeding each output to the next",
		ArgsUsage: "<chain.yaml>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("chain file required", 1)
			}
			chain, err := config.LoadChain(c.Args().First())
			if err != nil {
				return err
			}
			a, err := newApp(c)
			if err != nil {
				return err
			}
			inputs := make([]models.NamedFile, 0, len(chain.Inputs))
			for _, path := range chain.Inputs {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				inputs = append(inputs, models.NamedFile{Name: filepath.Base(path), Data: data})
			}

			step := color.New(color.FgCyan)
			blob, err := a.toolkit.RunChain(c.Context, chain, inputs, a.deps(), func(r services.ChainReport) {
				step.Printf("[%d/%d] %s -> %s (%s)\n", r.Step, len(chain.Steps), r.Tool, r.Output, formatSize(r.Size))
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(chain.Output, blob.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", chain.Output, err)
			}
			color.Green("Wrote %s (%s)", chain.Output, formatSize(len(blob.Data)))
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recently produced outputs",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "clear", Usage: "Empty the history"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			if a.history == nil {
				return cli.Exit("history is disabled (history.max_entries is 0)", 1)
			}
			if c.Bool("clear") {
				return a.history.Clear()
			}
			dim := color.New(color.Faint)
			for _, e := range a.history.Entries() {
				dim.Printf("%s  ", e.Timestamp.Local().Format("2006-01-02 15:04"))
				fmt.Printf("%-9s %s (%s)\n", e.Tool, e.Name, formatSize(e.Size))
			}
			return nil
		},
	}
}
