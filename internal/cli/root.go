package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gostim/pkg/recorder"
)

const (
	appName    = "stimgen"
	appVersion = "0.1.0"
)

// NewRootCmd builds the stimgen command: load a stimulus profile, run N
// randomizations, print or record the results.
func NewRootCmd() *cobra.Command {
	profilePath := ""
	count := 1
	seed := int64(0)
	format := "table"
	recordPath := ""
	verbose := false
	showVersion := false

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Constrained-random stimulus generator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return errors.Errorf("unexpected arguments: %v", args)
			}
			if showVersion {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, appVersion)
				return err
			}
			if profilePath == "" {
				return errors.New("--profile is required")
			}
			if format != "table" && format != "json" {
				return errors.Errorf("unknown format %q", format)
			}

			profile, err := LoadProfile(profilePath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				profile.Engine.Seed = seed
			}
			if verbose {
				profile.Engine.Verbose = true
			}

			c, err := profile.Build()
			if err != nil {
				return err
			}

			var rec *recorder.Recorder
			if recordPath != "" {
				rec, err = recorder.Open(recordPath)
				if err != nil {
					return err
				}
				defer rec.Close()
			}

			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				if err := c.Randomize(context.Background()); err != nil {
					return errors.Wrapf(err, "randomization %d", i+1)
				}
				if rep := c.LastReport(); len(rep.DroppedSoft) > 0 && verbose {
					fmt.Fprintf(cmd.ErrOrStderr(), "dropped soft constraints: %v\n", rep.DroppedSoft)
				}

				switch format {
				case "json":
					row := map[string]string{"_report": c.LastReport().ID.String()}
					for _, fv := range c.Snapshot() {
						row[fv.Name] = fv.Value
					}
					enc, err := json.Marshal(row)
					if err != nil {
						return errors.Wrap(err, "encode result")
					}
					fmt.Fprintln(out, string(enc))
				default:
					fmt.Fprint(out, c.String())
				}

				if rec != nil {
					if err := rec.Record(c); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "stimulus profile yaml")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of randomizations")
	cmd.Flags().Int64VarP(&seed, "seed", "s", 0, "engine seed for reproducible runs")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or json")
	cmd.Flags().StringVar(&recordPath, "record", "", "record results into a sqlite database")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log solver activity")
	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print version")

	_ = cmd.MarkFlagFilename("profile", "yaml", "yml")

	return cmd
}
